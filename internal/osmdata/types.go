package osmdata

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoTiles is returned when a dataset has no nodes and therefore no tiles
var ErrNoTiles = errors.New("dataset contains no tiles")

// GeometryType is the on-disk geometry code of a feature
type GeometryType uint8

const (
	GeometryPoint    GeometryType = 0
	GeometryPolyline GeometryType = 1
	GeometryPolygon  GeometryType = 2
)

// String returns the lower-case geometry name
func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "point"
	case GeometryPolyline:
		return "polyline"
	case GeometryPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("geometry(%d)", uint8(g))
	}
}

// Valid reports whether g is one of the three known geometry codes
func (g GeometryType) Valid() bool {
	return g <= GeometryPolygon
}

// Coordinate is a WGS84 latitude/longitude pair in degrees
type Coordinate struct {
	Lat float64
	Lon float64
}

// Tag is a single key/value pair. Order and duplicates are preserved.
type Tag struct {
	Key   string
	Value string
}

// Node is a point with tags
type Node struct {
	ID   int64
	Pos  Coordinate
	Tags []Tag
}

// Way is an ordered list of node references with tags
type Way struct {
	ID      int64
	NodeIDs []int64
	Tags    []Tag
}

// GeometryOf infers the geometry of a coordinate sequence.
// A sequence whose first and last coordinates are equal is a polygon.
func GeometryOf(coords []Coordinate) GeometryType {
	if len(coords) > 0 && coords[0] == coords[len(coords)-1] {
		return GeometryPolygon
	}
	return GeometryPolyline
}

// Dataset is the fully resident input of the encoder
type Dataset struct {
	Nodes map[int64]*Node
	Ways  []*Way

	// Tiles maps a tile id to the ids of the nodes located in it
	Tiles map[int32][]int64
}

// NewDataset creates an empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Nodes: make(map[int64]*Node),
		Tiles: make(map[int32][]int64),
	}
}

// AddNode stores a node, replacing any node with the same id
func (d *Dataset) AddNode(n *Node) {
	d.Nodes[n.ID] = n
}

// AddWay appends a way
func (d *Dataset) AddWay(w *Way) {
	d.Ways = append(d.Ways, w)
}

// AssignTiles groups the node ids by the tile returned from tileOf.
// Node ids within a tile are sorted ascending.
func (d *Dataset) AssignTiles(tileOf func(Coordinate) int32) error {
	tiles := make(map[int32][]int64)
	for id, n := range d.Nodes {
		t := tileOf(n.Pos)
		tiles[t] = append(tiles[t], id)
	}
	if len(tiles) == 0 {
		return ErrNoTiles
	}
	for _, ids := range tiles {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	d.Tiles = tiles
	return nil
}

// SortWays orders ways by id so that encoding is deterministic
func (d *Dataset) SortWays() {
	sort.SliceStable(d.Ways, func(i, j int) bool { return d.Ways[i].ID < d.Ways[j].ID })
}

// TileIDs returns the tile ids in ascending order
func (d *Dataset) TileIDs() []int32 {
	ids := make([]int32, 0, len(d.Tiles))
	for id := range d.Tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NodeIDs returns all node ids in ascending order
func (d *Dataset) NodeIDs() []int64 {
	ids := make([]int64, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BBox represents a geographic bounding box
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// NewBBox creates a box from two corners
func NewBBox(min, max Coordinate) BBox {
	return BBox{MinLat: min.Lat, MinLon: min.Lon, MaxLat: max.Lat, MaxLon: max.Lon}
}

// World covers the whole coordinate domain
func World() BBox {
	return BBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
}

// IsValid checks that the minimum corner does not exceed the maximum corner
func (b BBox) IsValid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Contains checks if a coordinate is within the bounding box
func (b BBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}
