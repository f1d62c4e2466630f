package pbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/wegman-software/mapster-go/internal/logger"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/tiling"
)

// Stats holds ingestion statistics
type Stats struct {
	Nodes     int64
	Ways      int64
	Relations int64 // skipped
	Tiles     int
	BytesRead int64
	Duration  time.Duration
}

// Scanner is the subset of osmpbf.Scanner used by Collect
type Scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
}

// shard holds the objects routed to one worker
type shard struct {
	nodes map[int64]*osmdata.Node
	ways  []*osmdata.Way
}

// Load reads a PBF file into a tiled, sorted dataset
func Load(ctx context.Context, path string, workers int) (*osmdata.Dataset, *Stats, error) {
	log := logger.Get()
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat input: %w", err)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	scanner := osmpbf.New(ctx, f, workers)
	defer scanner.Close()

	log.Info("Reading OSM data", zap.String("input", path), zap.Int("workers", workers))
	ds, stats, err := Collect(ctx, scanner, workers)
	if err != nil {
		return nil, nil, err
	}
	stats.BytesRead = info.Size()
	stats.Duration = time.Since(start)

	log.Info("OSM data loaded",
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("ways", stats.Ways),
		zap.Int64("relations_skipped", stats.Relations),
		zap.Int("tiles", stats.Tiles),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)),
	)
	return ds, stats, nil
}

// Collect drains a scanner into a dataset. Objects are sharded by id across
// workers, the shards are merged once every worker has finished, node tiles
// are assigned and ways are sorted by id.
func Collect(ctx context.Context, scanner Scanner, workers int) (*osmdata.Dataset, *Stats, error) {
	log := logger.Get()
	if workers <= 0 {
		workers = 1
	}

	stats := &Stats{}
	counts := newProgress()

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go counts.report(progressCtx, log, progressInterval)

	g, gctx := errgroup.WithContext(ctx)

	inputs := make([]chan osm.Object, workers)
	shards := make([]*shard, workers)
	for i := range inputs {
		inputs[i] = make(chan osm.Object, 1024)
		shards[i] = &shard{nodes: make(map[int64]*osmdata.Node)}

		in, s := inputs[i], shards[i]
		g.Go(func() error {
			for obj := range in {
				switch o := obj.(type) {
				case *osm.Node:
					s.nodes[int64(o.ID)] = convertNode(o)
					counts.nodes.Add(1)
				case *osm.Way:
					s.ways = append(s.ways, convertWay(o))
					counts.ways.Add(1)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				close(in)
			}
		}()

		for scanner.Scan() {
			obj := scanner.Object()
			var target int
			switch o := obj.(type) {
			case *osm.Node:
				target = shardOf(int64(o.ID), workers)
			case *osm.Way:
				target = shardOf(int64(o.ID), workers)
			case *osm.Relation:
				counts.relations.Add(1)
				continue
			default:
				continue
			}

			select {
			case inputs[target] <- obj:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			return fmt.Errorf("failed to scan input: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	ds := merge(shards)
	if err := ds.AssignTiles(tiling.TileOf); err != nil {
		return nil, nil, err
	}
	ds.SortWays()

	stats.Nodes = int64(len(ds.Nodes))
	stats.Ways = int64(len(ds.Ways))
	stats.Relations = counts.relations.Load()
	stats.Tiles = len(ds.Tiles)
	return ds, stats, nil
}

func shardOf(id int64, workers int) int {
	if id < 0 {
		id = -id
	}
	return int(id % int64(workers))
}

func merge(shards []*shard) *osmdata.Dataset {
	ds := osmdata.NewDataset()
	for _, s := range shards {
		for _, n := range s.nodes {
			ds.AddNode(n)
		}
		for _, w := range s.ways {
			ds.AddWay(w)
		}
	}
	return ds
}

func convertNode(n *osm.Node) *osmdata.Node {
	return &osmdata.Node{
		ID:   int64(n.ID),
		Pos:  osmdata.Coordinate{Lat: n.Lat, Lon: n.Lon},
		Tags: convertTags(n.Tags),
	}
}

func convertWay(w *osm.Way) *osmdata.Way {
	ids := make([]int64, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = int64(wn.ID)
	}
	return &osmdata.Way{
		ID:      int64(w.ID),
		NodeIDs: ids,
		Tags:    convertTags(w.Tags),
	}
}

func convertTags(tags osm.Tags) []osmdata.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]osmdata.Tag, len(tags))
	for i, t := range tags {
		out[i] = osmdata.Tag{Key: t.Key, Value: t.Value}
	}
	return out
}
