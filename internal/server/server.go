package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/render"
	"github.com/wegman-software/mapster-go/internal/style"
)

// FeatureSource is the read side of a map file
type FeatureSource interface {
	ForEachFeature(bbox osmdata.BBox, visit func(*mapfile.Feature) bool) error
	TileCount() int
}

// Config holds the service settings
type Config struct {
	DefaultSize  int
	MaxSize      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Style        *style.Style
}

// Server renders map images from a feature source over HTTP
type Server struct {
	app     *fiber.App
	source  FeatureSource
	cfg     Config
	log     *zap.Logger
	metrics *httpMetrics
}

// New creates the fiber app and registers request metrics on reg.
// /metrics serves everything gathered by reg.
func New(source FeatureSource, cfg Config, reg *prometheus.Registry, log *zap.Logger) (*Server, error) {
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = 800
	}
	if cfg.MaxSize < cfg.DefaultSize {
		cfg.MaxSize = cfg.DefaultSize
	}
	if cfg.Style == nil {
		cfg.Style = style.Default()
	}

	m, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &Server{source: source, cfg: cfg, log: log, metrics: m}
	s.app = fiber.New(fiber.Config{
		AppName:               "mapster",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s.app.Use(m.middleware())
	s.app.Use(accessLog(log))
	s.app.Use(recover.New())

	s.app.Get("/render", s.handleRender)
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", metricsHandler(reg))
	return s, nil
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.log.Info("Render service listening",
		zap.String("addr", addr),
		zap.Int("tiles", s.source.TileCount()))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// renderRequest is a validated /render query
type renderRequest struct {
	bbox osmdata.BBox
	size int
}

func (s *Server) parseRenderRequest(c *fiber.Ctx) (*renderRequest, error) {
	var coords [4]float64
	for i, name := range []string{"minLat", "minLon", "maxLat", "maxLon"} {
		raw := c.Query(name)
		if raw == "" {
			return nil, fiber.NewError(fiber.StatusBadRequest, "missing parameter "+name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
		}
		coords[i] = v
	}

	req := &renderRequest{
		bbox: osmdata.BBox{MinLat: coords[0], MinLon: coords[1], MaxLat: coords[2], MaxLon: coords[3]},
		size: s.cfg.DefaultSize,
	}
	if !req.bbox.IsValid() {
		return nil, fiber.NewError(fiber.StatusBadRequest, "bounding box minimum exceeds maximum")
	}
	world := osmdata.World()
	if !world.Contains(osmdata.Coordinate{Lat: req.bbox.MinLat, Lon: req.bbox.MinLon}) ||
		!world.Contains(osmdata.Coordinate{Lat: req.bbox.MaxLat, Lon: req.bbox.MaxLon}) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "bounding box outside the coordinate domain")
	}

	if raw := c.Query("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > s.cfg.MaxSize {
			return nil, fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("size must be an integer between 1 and %d", s.cfg.MaxSize))
		}
		req.size = size
	}
	return req, nil
}

func (s *Server) handleRender(c *fiber.Ctx) error {
	req, err := s.parseRenderRequest(c)
	if err != nil {
		return err
	}

	start := time.Now()
	queue := render.NewQueue()
	bounds := render.EmptyBound()
	var tessErr error
	err = s.source.ForEachFeature(req.bbox, func(f *mapfile.Feature) bool {
		if err := render.Tessellate(f, &bounds, queue); err != nil {
			tessErr = err
			return false
		}
		return true
	})
	if err == nil {
		err = tessErr
	}
	if err != nil {
		return fmt.Errorf("failed to read features: %w", err)
	}
	tessellated := time.Since(start)
	shapes := queue.Len()

	img := queue.Render(bounds, req.size, req.size, s.cfg.Style)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}

	s.metrics.shapes.Observe(float64(shapes))
	s.log.Debug("Rendered",
		zap.Int("shapes", shapes),
		zap.Int("size", req.size),
		zap.Duration("tessellate", tessellated),
		zap.Duration("total", time.Since(start)))

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"tiles":  s.source.TileCount(),
	})
}

// errorHandler answers with a JSON error body. Errors that are not
// *fiber.Error are internal failures.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
		msg = ferr.Message
	} else if errors.Is(err, mapfile.ErrCorrupt) {
		msg = "map file is corrupt"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
