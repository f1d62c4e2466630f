package pbf

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const progressInterval = 2 * time.Second

// progress counts ingested objects. Workers update it concurrently while
// report logs a snapshot on every tick.
type progress struct {
	nodes     atomic.Int64
	ways      atomic.Int64
	relations atomic.Int64
	start     time.Time
}

func newProgress() *progress {
	return &progress{start: time.Now()}
}

// report logs the counters at interval until ctx is done
func (p *progress) report(ctx context.Context, log *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nodes := p.nodes.Load()
			elapsed := time.Since(p.start).Seconds()
			log.Debug("Ingestion progress",
				zap.Int64("nodes", nodes),
				zap.Int64("ways", p.ways.Load()),
				zap.Int64("relations_skipped", p.relations.Load()),
				zap.Float64("nodes_per_sec", float64(nodes)/elapsed))
		}
	}
}
