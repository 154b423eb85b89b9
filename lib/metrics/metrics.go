// Package metrics exposes Prometheus metrics for the versioning engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names used as label values by the API layer.
const (
	OpCreateVersion = "create_version"
	OpPublish       = "publish_version"
	OpRollback      = "rollback_version"
	OpCreateBranch  = "create_branch"
	OpMergeBranch   = "merge_branch"
	OpStartSession  = "start_session"
	OpCommitSession = "commit_session"
)

// Metrics holds every Prometheus series the engine publishes. A nil *Metrics
// is valid and records nothing, which is how metrics are switched off.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	MergeConflictsTotal         prometheus.Counter
	SessionCommitConflictsTotal prometheus.Counter
	SessionChangesTotal         prometheus.Counter

	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time

	registerer prometheus.Registerer
}

// NewMetrics creates and registers all series with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
		registerer:      reg,
	}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vellum_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vellum_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vellum_operations_total",
			Help: "Total number of versioning operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vellum_operation_duration_seconds",
			Help:    "Duration of versioning operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	m.MergeConflictsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vellum_merge_conflicts_total",
			Help: "Total number of merges rejected with conflicting regions",
		},
	)

	m.SessionCommitConflictsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vellum_session_commit_conflicts_total",
			Help: "Total number of session commits rejected because the branch moved",
		},
	)

	m.SessionChangesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vellum_session_changes_total",
			Help: "Total number of real-time changes accepted into sessions",
		},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "vellum_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	go m.updateUptime()
	return m
}

// updateUptime periodically refreshes the uptime gauge.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records one versioning operation with its outcome.
func (m *Metrics) RecordOperation(operation string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMergeConflict counts a merge rejected over conflicting regions.
func (m *Metrics) RecordMergeConflict() {
	if m == nil {
		return
	}
	m.MergeConflictsTotal.Inc()
}

// RecordSessionCommitConflict counts a session flush that lost to an outside
// version.
func (m *Metrics) RecordSessionCommitConflict() {
	if m == nil {
		return
	}
	m.SessionCommitConflictsTotal.Inc()
}

// RecordSessionChange counts one accepted real-time change.
func (m *Metrics) RecordSessionChange() {
	if m == nil {
		return
	}
	m.SessionChangesTotal.Inc()
}

// RegisterSessionGauges wires pull-style gauges over the live session set. The
// callbacks run at scrape time.
func (m *Metrics) RegisterSessionGauges(openSessions func() float64, participants func() float64) {
	if m == nil {
		return
	}
	factory := promauto.With(m.registerer)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vellum_open_sessions",
		Help: "Number of collaboration sessions currently open",
	}, openSessions)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vellum_session_participants",
		Help: "Number of participants across all open sessions",
	}, participants)
}
