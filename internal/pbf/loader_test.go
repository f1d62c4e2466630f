package pbf

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/osm"

	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

type sliceScanner struct {
	objects []osm.Object
	pos     int
	err     error
}

func (s *sliceScanner) Scan() bool {
	if s.pos >= len(s.objects) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceScanner) Object() osm.Object { return s.objects[s.pos-1] }
func (s *sliceScanner) Err() error         { return s.err }

func testObjects() []osm.Object {
	objs := []osm.Object{}
	for i := 1; i <= 20; i++ {
		objs = append(objs, &osm.Node{
			ID:  osm.NodeID(i),
			Lat: 43.73 + float64(i)*0.0001,
			Lon: 7.42,
			Tags: osm.Tags{
				{Key: "ref", Value: "n"},
			},
		})
	}
	objs = append(objs,
		&osm.Node{ID: 99, Lat: 48.2, Lon: 16.37},
		&osm.Way{
			ID:    300,
			Nodes: osm.WayNodes{{ID: 3}, {ID: 4}},
			Tags:  osm.Tags{{Key: "highway", Value: "primary"}, {Key: "name", Value: "Rue"}},
		},
		&osm.Way{ID: 100, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 5}, {ID: 1}}},
		&osm.Way{ID: 200, Nodes: osm.WayNodes{{ID: 7}, {ID: 8}}},
		&osm.Relation{ID: 5},
	)
	return objs
}

func TestCollect(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		ds, stats, err := Collect(context.Background(), &sliceScanner{objects: testObjects()}, workers)
		if err != nil {
			t.Fatalf("workers=%d: Collect failed: %v", workers, err)
		}

		if len(ds.Nodes) != 21 {
			t.Errorf("workers=%d: got %d nodes, want 21", workers, len(ds.Nodes))
		}
		if stats.Relations != 1 {
			t.Errorf("workers=%d: got %d relations, want 1", workers, stats.Relations)
		}

		// Ways come back sorted by id regardless of sharding
		var ids []int64
		for _, w := range ds.Ways {
			ids = append(ids, w.ID)
		}
		if len(ids) != 3 || ids[0] != 100 || ids[1] != 200 || ids[2] != 300 {
			t.Errorf("workers=%d: way order %v", workers, ids)
		}

		if got := ds.Ways[2].Tags; len(got) != 2 || got[1] != (osmdata.Tag{Key: "name", Value: "Rue"}) {
			t.Errorf("workers=%d: way tags %v", workers, got)
		}
		if got := ds.Ways[0].NodeIDs; len(got) != 4 || got[0] != 1 || got[3] != 1 {
			t.Errorf("workers=%d: way node refs %v", workers, got)
		}

		vienna := tiling.TileOf(osmdata.Coordinate{Lat: 48.2, Lon: 16.37})
		if nodes := ds.Tiles[vienna]; len(nodes) != 1 || nodes[0] != 99 {
			t.Errorf("workers=%d: tile %d holds %v", workers, vienna, nodes)
		}
		if stats.Tiles != len(ds.Tiles) || stats.Tiles < 2 {
			t.Errorf("workers=%d: stats report %d tiles, dataset has %d", workers, stats.Tiles, len(ds.Tiles))
		}
	}
}

func TestCollectNoNodes(t *testing.T) {
	scanner := &sliceScanner{objects: []osm.Object{&osm.Relation{ID: 1}}}
	_, _, err := Collect(context.Background(), scanner, 2)
	if !errors.Is(err, osmdata.ErrNoTiles) {
		t.Errorf("expected ErrNoTiles, got %v", err)
	}
}

func TestCollectScannerError(t *testing.T) {
	boom := errors.New("truncated blob")
	scanner := &sliceScanner{objects: testObjects(), err: boom}
	_, _, err := Collect(context.Background(), scanner, 2)
	if !errors.Is(err, boom) {
		t.Errorf("expected scanner error, got %v", err)
	}
}

func TestShardOf(t *testing.T) {
	tests := []struct {
		id      int64
		workers int
		want    int
	}{
		{0, 4, 0},
		{5, 4, 1},
		{-5, 4, 1},
		{7, 1, 0},
	}
	for _, tt := range tests {
		if got := shardOf(tt.id, tt.workers); got != tt.want {
			t.Errorf("shardOf(%d, %d) = %d, want %d", tt.id, tt.workers, got, tt.want)
		}
	}
}
