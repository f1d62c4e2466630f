package render

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/mapster-go/internal/classify"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/proj"
)

// ErrNotDrawable is returned for features classified as None
var ErrNotDrawable = errors.New("feature is not drawable")

// CreateShape builds the shape variant of a category from a decoded feature.
// Coordinates are projected to Web Mercator.
func CreateShape(category classify.Category, f *mapfile.Feature) (Shape, error) {
	b := base{id: f.ID, points: mercator(f.Coordinates)}
	polygon := f.Geometry == osmdata.GeometryPolygon

	switch category {
	case classify.None:
		return nil, ErrNotDrawable
	case classify.Road:
		highway, _ := f.Tag("highway")
		return &Road{base: b, Highway: highway}, nil
	case classify.Waterway:
		return &Waterway{base: b, Polygon: polygon}, nil
	case classify.Border:
		return &Border{base: b}, nil
	case classify.PopulatedPlace:
		place, _ := f.Tag("place")
		return &PopulatedPlace{base: b, Label: f.Label, Place: place}, nil
	case classify.Railway:
		return &Railway{base: b}, nil
	case classify.Natural:
		natural, _ := f.Tag("natural")
		return &GeoFeature{base: b, Kind: NaturalKind(natural), Polygon: polygon}, nil
	case classify.Forest:
		return &GeoFeature{base: b, Kind: GeoForest, Polygon: polygon}, nil
	case classify.Residential:
		return &GeoFeature{base: b, Kind: GeoResidential, Polygon: polygon}, nil
	case classify.Plain:
		return &GeoFeature{base: b, Kind: GeoPlain, Polygon: polygon}, nil
	case classify.Water:
		return &GeoFeature{base: b, Kind: GeoWater, Polygon: polygon}, nil
	default:
		return nil, fmt.Errorf("feature %d: unknown shape category %d", f.ID, int32(category))
	}
}

// NaturalKind maps the value of a natural tag to a land cover kind
func NaturalKind(value string) GeoKind {
	switch value {
	case "fell", "grassland", "heath", "moor", "scrub", "wetland":
		return GeoPlain
	case "wood", "tree_row":
		return GeoForest
	case "bare_rock", "rock", "scree":
		return GeoMountains
	case "beach", "sand":
		return GeoDesert
	case "water":
		return GeoWater
	default:
		return GeoUnknown
	}
}

func mercator(coords []osmdata.Coordinate) []orb.Point {
	pts := make([]orb.Point, len(coords))
	for i, c := range coords {
		pts[i] = proj.Mercator(c)
	}
	return pts
}
