package tiling

import (
	"math"
	"testing"

	"github.com/wegman-software/mapster-go/internal/osmdata"
)

func TestTileOf(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantRow int
		wantCol int
	}{
		{"south west corner", -90, -180, 0, 0},
		{"north east corner", 90, 180, GridSize - 1, GridSize - 1},
		{"origin", 0, 0, GridSize / 2, GridSize / 2},
		{"London", 51.5074, -0.1278, 3220, 2046},
		{"out of range clamps", 120, -400, GridSize - 1, 0},
		{"NaN maps to first cell", math.NaN(), math.NaN(), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := TileOf(osmdata.Coordinate{Lat: tt.lat, Lon: tt.lon})
			cell := CellOf(id)
			if cell.Row != tt.wantRow || cell.Col != tt.wantCol {
				t.Errorf("TileOf(%f, %f) = %s, want %d/%d", tt.lat, tt.lon, cell, tt.wantRow, tt.wantCol)
			}
		})
	}
}

func TestTileBoundsContainsCoordinate(t *testing.T) {
	coords := []osmdata.Coordinate{
		{Lat: 43.7384, Lon: 7.4246},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 40.7128, Lon: -74.0060},
	}
	for _, c := range coords {
		b := TileBounds(TileOf(c))
		if !b.Contains(c) {
			t.Errorf("TileBounds(TileOf(%v)) = %+v does not contain coordinate", c, b)
		}
	}
}

func TestTilesOverlappingSingleCell(t *testing.T) {
	c := osmdata.Coordinate{Lat: 43.7384, Lon: 7.4246}
	tiles := TilesOverlapping(osmdata.NewBBox(c, c))
	if len(tiles) != 1 || tiles[0] != TileOf(c) {
		t.Errorf("TilesOverlapping(point) = %v, want [%d]", tiles, TileOf(c))
	}
}

func TestTilesOverlappingHasNoFalseNegatives(t *testing.T) {
	bbox := osmdata.BBox{MinLat: 43.70, MinLon: 7.35, MaxLat: 43.80, MaxLon: 7.50}
	tiles := TilesOverlapping(bbox)
	set := make(map[int32]bool, len(tiles))
	for _, id := range tiles {
		set[id] = true
	}

	for lat := bbox.MinLat; lat <= bbox.MaxLat; lat += 0.01 {
		for lon := bbox.MinLon; lon <= bbox.MaxLon; lon += 0.01 {
			id := TileOf(osmdata.Coordinate{Lat: lat, Lon: lon})
			if !set[id] {
				t.Fatalf("tile %d of (%f, %f) missing from TilesOverlapping", id, lat, lon)
			}
		}
	}
}

func TestRangeContains(t *testing.T) {
	r := RangeOf(osmdata.World())
	if r.TileCount() != GridSize*GridSize {
		t.Errorf("world range has %d tiles, want %d", r.TileCount(), GridSize*GridSize)
	}
	if !r.Contains(0) || !r.Contains(GridSize*GridSize-1) {
		t.Error("world range should contain the first and last tile")
	}
	if r.Contains(-1) || r.Contains(GridSize*GridSize) {
		t.Error("world range should not contain ids outside the grid")
	}

	small := RangeOf(osmdata.BBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1})
	if small.Contains(TileOf(osmdata.Coordinate{Lat: -10, Lon: -10})) {
		t.Error("small range should not contain a distant tile")
	}
}

func TestRangeInverted(t *testing.T) {
	r := RangeOf(osmdata.BBox{MinLat: 10, MinLon: 10, MaxLat: -10, MaxLon: -10})
	if !r.Empty() {
		t.Error("inverted box should produce an empty range")
	}
	if len(r.Tiles()) != 0 {
		t.Errorf("expected no tiles, got %d", len(r.Tiles()))
	}
}
