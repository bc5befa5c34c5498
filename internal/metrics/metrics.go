// Package metrics provides Prometheus instrumentation for the fraud scoring service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts scoring decisions by final action.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "decisions_total",
			Help:      "Total scoring decisions by action (allow, review, block).",
		},
		[]string{"action"},
	)

	// PipelineDuration observes end-to-end scoring latency by terminal state.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end scoring pipeline duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, .8, 1, 2.5},
		},
		[]string{"state"},
	)

	// PipelineAbortsTotal counts aborted pipeline runs by reason.
	PipelineAbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "pipeline_aborts_total",
			Help:      "Total aborted scoring runs by reason.",
		},
		[]string{"reason"},
	)

	// RuleTimeoutsTotal counts rules that exceeded their evaluation budget.
	RuleTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "rule_timeouts_total",
			Help:      "Total rule evaluations that exceeded the per-rule budget.",
		},
		[]string{"rule"},
	)

	// ModelFailuresTotal counts model invocations that failed or timed out.
	ModelFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "model_failures_total",
			Help:      "Total failed or timed-out model invocations by model.",
		},
		[]string{"model"},
	)

	// ModelScoreDuration observes per-model inference latency.
	ModelScoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "model_score_duration_seconds",
			Help:      "Per-model inference duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"model"},
	)

	// AuditAppendsTotal counts ledger appends by result.
	AuditAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "audit_appends_total",
			Help:      "Total audit ledger appends by result (ok, error).",
		},
		[]string{"result"},
	)

	// ChainVerificationsTotal counts audit chain verification sweeps by outcome.
	ChainVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "chain_verifications_total",
			Help:      "Total audit chain verification runs by outcome (valid, broken, error).",
		},
		[]string{"outcome"},
	)

	// ActiveWebSocketClients tracks connected decision-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraudgate",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudgate", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		PipelineDuration,
		PipelineAbortsTotal,
		RuleTimeoutsTotal,
		ModelFailuresTotal,
		ModelScoreDuration,
		AuditAppendsTotal,
		ChainVerificationsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
