// Package metrics exposes the operational counters and gauges a running
// Session updates at the same points it already logs: connection attempts,
// faults by status code, live sub-stream count, and outbound queue depth.
// It is a thin wrapper over github.com/prometheus/client_golang, the metrics
// library this dependency family standardizes on.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric a Session updates. A nil *Registry is safe
// to call methods on — every method is a no-op — so metrics stay optional
// for callers who never construct one.
type Registry struct {
	connectAttempts *prometheus.CounterVec
	faults          *prometheus.CounterVec
	subStreams      *prometheus.GaugeVec
	queueDepth      *prometheus.GaugeVec
}

// NewRegistry builds a Registry and registers its collectors with reg.
// Passing prometheus.NewRegistry() keeps metrics isolated to one Session;
// passing prometheus.DefaultRegisterer shares the process-wide registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xrootd_client",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts made by a stream, labeled by endpoint and stream.",
		}, []string{"endpoint", "stream"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xrootd_client",
			Name:      "stream_faults_total",
			Help:      "Stream faults, labeled by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		subStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xrootd_client",
			Name:      "substreams_active",
			Help:      "Number of currently bonded sub-streams, labeled by endpoint.",
		}, []string{"endpoint"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xrootd_client",
			Name:      "outbound_queue_depth",
			Help:      "Outbound queue depth, labeled by endpoint and stream.",
		}, []string{"endpoint", "stream"}),
	}
	reg.MustRegister(r.connectAttempts, r.faults, r.subStreams, r.queueDepth)
	return r
}

func (r *Registry) ConnectAttempt(endpoint, stream string) {
	if r == nil {
		return
	}
	r.connectAttempts.WithLabelValues(endpoint, stream).Inc()
}

func (r *Registry) Fault(endpoint, code string) {
	if r == nil {
		return
	}
	r.faults.WithLabelValues(endpoint, code).Inc()
}

func (r *Registry) SetSubStreams(endpoint string, n int) {
	if r == nil {
		return
	}
	r.subStreams.WithLabelValues(endpoint).Set(float64(n))
}

func (r *Registry) SetQueueDepth(endpoint, stream string, n int) {
	if r == nil {
		return
	}
	r.queueDepth.WithLabelValues(endpoint, stream).Set(float64(n))
}
