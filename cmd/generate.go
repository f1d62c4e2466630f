package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/mapster-go/internal/logger"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/metrics"
	"github.com/wegman-software/mapster-go/internal/pbf"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a map file from an OSM PBF extract",
	Long: `Read nodes and ways from an .osm.pbf file, classify them and write a
tile-partitioned binary map file.

Partition modes:
  - global   every tile block holds the complete feature set (default)
  - spatial  a tile block holds only the features touching that tile

Relations are skipped. A way referencing a node that is not in the
extract aborts the run without leaving an output file behind.`,
	Args: cobra.NoArgs,
	Run:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&cfg.InputFile, "input", "i", "", "Input .osm.pbf file")
	generateCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "Output map file")
	generateCmd.Flags().StringVar(&cfg.Partition, "partition", cfg.Partition, "Tile partition mode (global, spatial)")
	generateCmd.Flags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel ingestion workers")
	generateCmd.MarkFlagRequired("input")
	generateCmd.MarkFlagRequired("output")
}

func runGenerate(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	partition, _ := cfg.PartitionMode()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, log)
		go collector.Start(ctx)
		log.Info("System metrics collection started", zap.Duration("interval", cfg.MetricsInterval))
	}

	log.Info("Starting map file generation",
		zap.String("input", cfg.InputFile),
		zap.String("output", cfg.OutputFile),
		zap.String("partition", partition.String()),
		zap.Int("workers", cfg.Workers),
	)
	start := time.Now()

	ds, loadStats, err := pbf.Load(ctx, cfg.InputFile, cfg.Workers)
	if err != nil {
		exitWithError("ingestion failed", err)
	}

	encStats, err := mapfile.WriteFile(cfg.OutputFile, ds, mapfile.Options{Partition: partition})
	if err != nil {
		exitWithError("encoding failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Generation complete",
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.Int64("nodes", loadStats.Nodes),
		zap.Int64("ways", loadStats.Ways),
		zap.Int64("relations_skipped", loadStats.Relations),
		zap.Int("tiles", encStats.Tiles),
		zap.Int64("features", encStats.Features),
		zap.Int64("coordinates", encStats.Coordinates),
		zap.Int64("strings", encStats.Strings),
		zap.Int64("bytes", encStats.BytesWritten),
		zap.Float64("throughput_mb_s", float64(loadStats.BytesRead)/(1024*1024)/elapsed.Seconds()),
	)
}
