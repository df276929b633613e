package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_requests_inflight",
			Help: "Requests currently being proxied",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Proxied request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Total upstream proxying errors by reason",
		},
		[]string{"reason"},
	)

	TargetHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_target_healthy",
			Help: "Whether an upstream target is currently healthy (1) or not (0)",
		},
		[]string{"pool_id", "target_id"},
	)

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_publish_total",
			Help: "Total publish attempts by result",
		},
		[]string{"result"},
	)

	RollbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rollback_total",
			Help: "Total rollback attempts by result",
		},
		[]string{"result"},
	)

	NodeLastAppliedVersionTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_node_last_applied_version_timestamp_seconds",
			Help: "Unix timestamp at which this node last applied a new snapshot",
		},
	)

	AuditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_audit_write_failures_total",
			Help: "Total audit records that failed to persist",
		},
	)
)

func init() {
	for _, c := range []prometheus.Collector{
		RequestsInflight,
		RequestDuration,
		UpstreamErrorsTotal,
		TargetHealthy,
		PublishTotal,
		RollbackTotal,
		NodeLastAppliedVersionTimestamp,
		AuditWriteFailuresTotal,
	} {
		// A failed registration is ignored; the collector stays usable.
		_ = prometheus.Register(c)
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports its duration to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
