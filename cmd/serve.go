package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/mapster-go/internal/logger"
	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/metrics"
	"github.com/wegman-software/mapster-go/internal/server"
	"github.com/wegman-software/mapster-go/internal/style"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rendered map images over HTTP",
	Long: `Memory-map a map file and answer render requests.

Endpoints:
  GET /render?minLat=..&minLon=..&maxLat=..&maxLon=..[&size=800]   PNG image
  GET /healthz                                                     service status
  GET /metrics                                                     Prometheus metrics`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&cfg.DataFile, "data", "d", "", "Map file to serve")
	serveCmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Listen address")
	serveCmd.Flags().IntVar(&cfg.DefaultSize, "size", cfg.DefaultSize, "Default image edge length in pixels")
	serveCmd.Flags().IntVar(&cfg.MaxSize, "max-size", cfg.MaxSize, "Largest accepted image edge length")
	serveCmd.Flags().StringVar(&cfg.StyleFile, "style", "", "Style YAML file (default: built-in palette)")
	serveCmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	serveCmd.MarkFlagRequired("data")
}

func runServe(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateServe(); err != nil {
		exitWithError("invalid configuration", err)
	}

	st := style.Default()
	if cfg.StyleFile != "" {
		styleCfg, err := style.LoadConfig(cfg.StyleFile)
		if err != nil {
			exitWithError("failed to load style", err)
		}
		if st, err = styleCfg.Compile(); err != nil {
			exitWithError("invalid style", err)
		}
		log.Info("Loaded style", zap.String("file", cfg.StyleFile))
	}

	reader, err := mapfile.Open(cfg.DataFile)
	if err != nil {
		exitWithError("failed to open map file", err)
	}
	defer reader.Close()

	log.Info("Map file opened",
		zap.String("path", cfg.DataFile),
		zap.Int64("version", reader.Version()),
		zap.Int("tiles", reader.TileCount()),
		zap.Int64("bytes", reader.Size()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
		if err := collector.Register(reg); err != nil {
			exitWithError("failed to register system metrics", err)
		}
		go collector.Start(ctx)
	}

	srv, err := server.New(reader, server.Config{
		DefaultSize:  cfg.DefaultSize,
		MaxSize:      cfg.MaxSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Style:        st,
	}, reg, logger.Named("http"))
	if err != nil {
		exitWithError("failed to create server", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.ListenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		exitWithError("server stopped", err)
	case sig := <-quit:
		log.Info("Shutdown signal received, draining connections", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
