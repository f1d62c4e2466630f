// Package render turns decoded map features into drawable shapes, orders them
// by draw rank and rasterizes them into an RGBA canvas.
package render

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/mapster-go/internal/style"
)

// Shape is a drawable feature in Web Mercator space.
// The set of implementations is closed; DrawRank and the rasterizer switch over all of them.
type Shape interface {
	FeatureID() int64
	Points() []orb.Point
	StyleClass() string
	sealed()
}

type base struct {
	id     int64
	points []orb.Point
}

func (b base) FeatureID() int64 { return b.id }
func (b base) Points() []orb.Point { return b.points }
func (b base) sealed() {}

// Road is a drawable highway
type Road struct {
	base
	Highway string
}

func (*Road) StyleClass() string { return style.ClassRoad }

// Waterway is a river or stream line, or a water area when Polygon is set
type Waterway struct {
	base
	Polygon bool
}

func (*Waterway) StyleClass() string { return style.ClassWaterway }

// Border is a national border line
type Border struct {
	base
}

func (*Border) StyleClass() string { return style.ClassBorder }

// PopulatedPlace is a named settlement point
type PopulatedPlace struct {
	base
	Label string
	Place string
}

func (*PopulatedPlace) StyleClass() string { return style.ClassPopulatedPlace }

// Railway is a railway line
type Railway struct {
	base
}

func (*Railway) StyleClass() string { return style.ClassRailway }

// GeoKind is the kind of land cover drawn by a GeoFeature
type GeoKind int

const (
	GeoUnknown GeoKind = iota
	GeoPlain
	GeoForest
	GeoMountains
	GeoDesert
	GeoWater
	GeoResidential
)

// GeoKinds lists every land cover kind
var GeoKinds = []GeoKind{GeoUnknown, GeoPlain, GeoForest, GeoMountains, GeoDesert, GeoWater, GeoResidential}

func (k GeoKind) String() string {
	switch k {
	case GeoUnknown:
		return "unknown"
	case GeoPlain:
		return "plain"
	case GeoForest:
		return "forest"
	case GeoMountains:
		return "mountains"
	case GeoDesert:
		return "desert"
	case GeoWater:
		return "water"
	case GeoResidential:
		return "residential"
	default:
		return fmt.Sprintf("geokind(%d)", int(k))
	}
}

// GeoFeature is an area of land cover
type GeoFeature struct {
	base
	Kind    GeoKind
	Polygon bool
}

func (g *GeoFeature) StyleClass() string {
	switch g.Kind {
	case GeoPlain:
		return style.ClassPlain
	case GeoForest:
		return style.ClassForest
	case GeoMountains:
		return style.ClassMountains
	case GeoDesert:
		return style.ClassDesert
	case GeoWater:
		return style.ClassWater
	case GeoResidential:
		return style.ClassResidential
	default:
		return style.ClassUnknown
	}
}
