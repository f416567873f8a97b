package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the console surface and the
// upstream laboratory API calls it makes.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	batchPreparedTotal      prometheus.Counter
	messagesQueuedTotal     prometheus.Counter
	uploadsRejectedTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labconsole",
				Name:      "http_requests_total",
				Help:      "Total number of console HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labconsole",
				Name:      "http_request_duration_seconds",
				Help:      "Console HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labconsole",
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream laboratory API calls by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		upstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labconsole",
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream call duration in seconds grouped by operation.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"operation"},
		),
		batchPreparedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "labconsole",
				Name:      "batch_prepared_total",
				Help:      "Total number of batch dispatch previews prepared.",
			},
		),
		messagesQueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "labconsole",
				Name:      "messages_queued_total",
				Help:      "Total number of WhatsApp messages the upstream acknowledged as queued.",
			},
		),
		uploadsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labconsole",
				Name:      "uploads_rejected_total",
				Help:      "Total number of report uploads rejected at the console boundary.",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamRequestDuration,
		m.batchPreparedTotal,
		m.messagesQueuedTotal,
		m.uploadsRejectedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveUpstream records one upstream call; outcome is "ok" or "error".
func (m *Metrics) ObserveUpstream(operation string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}

	opLabel := strings.TrimSpace(strings.ToLower(operation))
	if opLabel == "" {
		opLabel = "unknown"
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}

	m.upstreamRequestsTotal.WithLabelValues(opLabel, outcome).Inc()

	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.upstreamRequestDuration.WithLabelValues(opLabel).Observe(seconds)
}

func (m *Metrics) IncBatchPrepared() {
	if m == nil {
		return
	}
	m.batchPreparedTotal.Inc()
}

func (m *Metrics) AddMessagesQueued(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.messagesQueuedTotal.Add(float64(count))
}

func (m *Metrics) IncUploadRejected(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.uploadsRejectedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
