package proj

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// SRID constants for the supported projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

// Web Mercator constants
const (
	earthRadius = 6378137.0
	maxExtent   = 20037508.342789244

	// MaxLatitude is the latitude at which Web Mercator becomes square
	MaxLatitude = 85.05112878
)

// Transformer converts WGS84 coordinates into a target projection.
// Output points are always (x, y), that is (lon, lat) for 4326.
type Transformer struct {
	TargetSRID int
}

// NewTransformer creates a transformer from WGS84 to the target SRID
func NewTransformer(targetSRID int) (*Transformer, error) {
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return &Transformer{TargetSRID: targetSRID}, nil
}

// Point projects one coordinate
func (t *Transformer) Point(c osmdata.Coordinate) orb.Point {
	if t.TargetSRID == SRID3857 {
		return Mercator(c)
	}
	return orb.Point{c.Lon, c.Lat}
}

// Points projects a coordinate sequence into a new slice
func (t *Transformer) Points(coords []osmdata.Coordinate) []orb.Point {
	pts := make([]orb.Point, len(coords))
	for i, c := range coords {
		pts[i] = t.Point(c)
	}
	return pts
}

// Mercator converts a WGS84 coordinate to Web Mercator meters.
// Latitudes beyond MaxLatitude are clamped.
func Mercator(c osmdata.Coordinate) orb.Point {
	lat := math.Max(-MaxLatitude, math.Min(MaxLatitude, c.Lat))

	x := c.Lon * maxExtent / 180.0
	// y = R * ln(tan(π/4 + φ/2))
	latRad := lat * math.Pi / 180.0
	y := math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius
	return orb.Point{x, y}
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch s {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
