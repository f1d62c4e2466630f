package cmd

import (
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/mapster-go/internal/config"
	"github.com/wegman-software/mapster-go/internal/logger"
)

var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "mapster",
	Short: "OSM map file generator and render service",
	Long: `mapster converts OpenStreetMap PBF extracts into a compact, tile-partitioned
binary map file and renders PNG images of bounding boxes from that file.

Commands:
  - generate  build a map file from an .osm.pbf extract
  - serve     render PNG images over HTTP
  - inspect   print the tile layout of a map file
  - export    write the features of a bounding box to Parquet

Every flag can also be set through a MAPSTER_<FLAG> environment variable
(dashes become underscores) or a mapster.yaml file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.BindEnvironment(cmd.Flags()); err != nil {
			return err
		}

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Logging and metrics flags
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics sampling (e.g., 10s, 1m, 0 to disable)")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
