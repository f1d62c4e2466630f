package tiling

import (
	"fmt"
	"math"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

// GridSize is the number of rows and columns of the tile grid
const GridSize = 4096

// Domain limits of the grid
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0
)

// Cell is a grid cell addressed by row (latitude) and column (longitude)
type Cell struct {
	Row int
	Col int
}

// ID returns the tile identifier of the cell
func (c Cell) ID() int32 {
	return int32(c.Row*GridSize + c.Col)
}

// String returns the cell in row/col format
func (c Cell) String() string {
	return fmt.Sprintf("%d/%d", c.Row, c.Col)
}

// CellOf splits a tile identifier into its row and column
func CellOf(id int32) Cell {
	return Cell{Row: int(id) / GridSize, Col: int(id) % GridSize}
}

// index maps v in [lo, hi] onto [0, GridSize-1]
func index(v, lo, hi float64) int {
	if math.IsNaN(v) || v <= lo {
		return 0
	}
	i := int((v - lo) / (hi - lo) * GridSize)
	if i >= GridSize {
		i = GridSize - 1
	}
	return i
}

// CellAt returns the grid cell containing the coordinate.
// Out of range coordinates are clamped onto the border cells.
func CellAt(c osmdata.Coordinate) Cell {
	return Cell{
		Row: index(c.Lat, MinLat, MaxLat),
		Col: index(c.Lon, MinLon, MaxLon),
	}
}

// TileOf returns the tile identifier for a coordinate
func TileOf(c osmdata.Coordinate) int32 {
	return CellAt(c).ID()
}

// TileBounds returns the geographic extent of a tile
func TileBounds(id int32) osmdata.BBox {
	cell := CellOf(id)
	latStep := (MaxLat - MinLat) / GridSize
	lonStep := (MaxLon - MinLon) / GridSize
	return osmdata.BBox{
		MinLat: MinLat + float64(cell.Row)*latStep,
		MaxLat: MinLat + float64(cell.Row+1)*latStep,
		MinLon: MinLon + float64(cell.Col)*lonStep,
		MaxLon: MinLon + float64(cell.Col+1)*lonStep,
	}
}

// Range represents the rectangle of cells touched by a bounding box
type Range struct {
	MinRow, MaxRow int
	MinCol, MaxCol int
}

// RangeOf converts a bounding box to the range of cells it overlaps
func RangeOf(bbox osmdata.BBox) Range {
	lo := CellAt(osmdata.Coordinate{Lat: bbox.MinLat, Lon: bbox.MinLon})
	hi := CellAt(osmdata.Coordinate{Lat: bbox.MaxLat, Lon: bbox.MaxLon})
	return Range{
		MinRow: lo.Row,
		MaxRow: hi.Row,
		MinCol: lo.Col,
		MaxCol: hi.Col,
	}
}

// Empty reports whether the range has no cells (inverted box)
func (r Range) Empty() bool {
	return r.MinRow > r.MaxRow || r.MinCol > r.MaxCol
}

// TileCount returns the number of tiles in the range
func (r Range) TileCount() int {
	if r.Empty() {
		return 0
	}
	return (r.MaxRow - r.MinRow + 1) * (r.MaxCol - r.MinCol + 1)
}

// Contains checks whether a tile lies inside the range
func (r Range) Contains(id int32) bool {
	if id < 0 || int(id) >= GridSize*GridSize {
		return false
	}
	c := CellOf(id)
	return c.Row >= r.MinRow && c.Row <= r.MaxRow && c.Col >= r.MinCol && c.Col <= r.MaxCol
}

// Tiles returns all tile identifiers in the range, row by row
func (r Range) Tiles() []int32 {
	tiles := make([]int32, 0, r.TileCount())
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			tiles = append(tiles, Cell{Row: row, Col: col}.ID())
		}
	}
	return tiles
}

// TilesOverlapping returns every tile whose cell intersects the bounding box.
// A box covering the whole domain yields GridSize*GridSize identifiers; callers
// holding a known tile set should prefer RangeOf(bbox).Contains.
func TilesOverlapping(bbox osmdata.BBox) []int32 {
	return RangeOf(bbox).Tiles()
}
