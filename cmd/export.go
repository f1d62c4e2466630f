package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/mapster-go/internal/config"
	"github.com/wegman-software/mapster-go/internal/logger"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/parquet"
	"github.com/wegman-software/mapster-go/internal/proj"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export map file features to GeoParquet",
	Long: `Decode the features of a map file and write them to a zstd-compressed
Parquet file with one row per feature and an EWKB geometry column.

Features repeated across tile blocks are written once. Use --bbox to
limit the export to the tiles overlapping an area.`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&cfg.DataFile, "data", "d", "", "Map file to export")
	exportCmd.Flags().StringVarP(&cfg.ExportFile, "output", "o", "", "Output .parquet file")
	exportCmd.Flags().StringVar(&cfg.BBox, "bbox", "", "Bounding box: minlon,minlat,maxlon,maxlat (default: whole file)")
	exportCmd.Flags().StringVar(&cfg.SRID, "srid", cfg.SRID, "Geometry SRID (4326, 3857)")
	exportCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
	exportCmd.MarkFlagRequired("data")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateExport(); err != nil {
		exitWithError("invalid configuration", err)
	}
	bbox, _ := config.ParseBBox(cfg.BBox)
	srid, _ := proj.ParseSRID(cfg.SRID)

	r, err := mapfile.Open(cfg.DataFile)
	if err != nil {
		exitWithError("failed to open map file", err)
	}
	defer r.Close()

	w, err := parquet.NewFeatureWriter(cfg.ExportFile, cfg.BatchSize)
	if err != nil {
		exitWithError("failed to create parquet file", err)
	}

	log.Info("Starting export",
		zap.String("data", cfg.DataFile),
		zap.String("output", cfg.ExportFile),
		zap.Int("srid", srid),
		zap.Int("tiles", r.TileCount()),
	)
	start := time.Now()

	stats, err := parquet.Export(r, bbox, w, srid)
	if err != nil {
		if aerr := w.Abort(); aerr != nil {
			log.Warn("Partial output left behind", zap.String("output", cfg.ExportFile), zap.Error(aerr))
		}
		exitWithError("export failed", err)
	}
	if err := w.Close(); err != nil {
		os.Remove(cfg.ExportFile)
		exitWithError("failed to finalize parquet file", err)
	}

	log.Info("Export complete",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.Int64("features", stats.Written),
		zap.Int64("duplicates_skipped", stats.Duplicates),
	)
}
