package server

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// httpMetrics holds the request metrics of one server
type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
	shapes       prometheus.Histogram
}

func newHTTPMetrics(reg prometheus.Registerer) (*httpMetrics, error) {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapster",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mapster",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mapster",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path"}),
		shapes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mapster",
			Subsystem: "render",
			Name:      "shapes",
			Help:      "Shapes drawn per render request",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.responseSize, m.shapes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// middleware records request metrics
func (m *httpMetrics) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			handleError(c, err)
		}

		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		m.requests.WithLabelValues(method, path, status).Inc()
		m.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		m.responseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))
		return nil
	}
}

// metricsHandler serves a registry in the Prometheus text format
func metricsHandler(g prometheus.Gatherer) fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// accessLog logs every request through zap. A handler error is answered
// by the app's error handler before the entry is written.
func accessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			handleError(c, err)
		}

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("query", string(c.Request().URI().QueryString())),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes_out", len(c.Response().Body())),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			log.Error("Request failed", fields...)
		case status >= 400:
			log.Warn("Request rejected", fields...)
		default:
			log.Info("Request", fields...)
		}
		return nil
	}
}

// handleError writes the error response for err
func handleError(c *fiber.Ctx, err error) {
	if herr := c.App().ErrorHandler(c, err); herr != nil {
		c.Status(fiber.StatusInternalServerError)
	}
}
