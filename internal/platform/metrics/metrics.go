// Package metrics exposes Prometheus counters and histograms for the
// record-sharing workflow.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts handled HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_http_requests_total",
		Help: "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carelink_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ShareRequestsCreated counts share requests submitted, by scope.
	ShareRequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_share_requests_created_total",
		Help: "Total number of share requests created.",
	}, []string{"scope"})

	// ShareRequestsResolved counts resolved requests by outcome status.
	ShareRequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_share_requests_resolved_total",
		Help: "Total number of share requests approved or denied.",
	}, []string{"status"})

	// ShareGrantsRecorded counts confirmed grants.
	ShareGrantsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_share_grants_recorded_total",
		Help: "Total number of share grants recorded.",
	})

	// ShareRequestsExpired counts requests transitioned to expired by the sweeper.
	ShareRequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_share_requests_expired_total",
		Help: "Total number of share requests expired by the background sweeper.",
	})

	// NotificationFailures counts notification deliveries that were dropped.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_notification_failures_total",
		Help: "Total number of notifications that failed to persist or deliver.",
	})

	// AuditFailures counts audit writes that could not be persisted.
	AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_audit_failures_total",
		Help: "Total number of audit entries that failed to persist.",
	})

	// WebsocketConnections tracks currently open websocket connections.
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carelink_websocket_connections",
		Help: "Number of currently open websocket connections.",
	})
)

// Handler returns the Prometheus scrape handler wrapped for echo.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Middleware records request counts and latency per route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
