package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all validation engine metrics.
type Registry struct {
	// Probe metrics
	ProbesTotal        *prometheus.CounterVec
	NegotiationSeconds *prometheus.HistogramVec
	ActiveMembers      *prometheus.GaugeVec

	// Breaker metrics
	BreakerState *prometheus.GaugeVec
	BreakerTrips *prometheus.CounterVec

	// Run metrics
	HostsProcessed  *prometheus.CounterVec
	HostSweepTime   *prometheus.HistogramVec
	RestoreFailures *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bondvet_probes_total",
		Help: "Total bond negotiation probes by mode and outcome",
	}, []string{"host", "mode", "outcome"})

	r.NegotiationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bondvet_negotiation_seconds",
		Help:    "Time for a bond to reach its success condition",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"host", "mode"})

	r.ActiveMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bondvet_active_members",
		Help: "Active members reported for the most recent probe",
	}, []string{"host", "mode"})

	r.BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bondvet_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"host", "class"})

	r.BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bondvet_breaker_trips_total",
		Help: "Times a circuit breaker opened",
	}, []string{"host", "class"})

	r.HostsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bondvet_hosts_processed_total",
		Help: "Hosts whose sweep finished, by final status",
	}, []string{"status"})

	r.HostSweepTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bondvet_host_sweep_seconds",
		Help:    "Wall time for one host's full configuration sweep",
		Buckets: prometheus.ExponentialBuckets(30, 2, 8),
	}, []string{"host"})

	r.RestoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bondvet_restore_failures_total",
		Help: "Hosts whose network state could not be fully restored",
	}, []string{"host"})

	return r
}

// RecordProbe records a finished probe.
func (r *Registry) RecordProbe(host, mode, outcome string, negotiationSeconds float64, activeMembers int) {
	r.ProbesTotal.WithLabelValues(host, mode, outcome).Inc()
	r.ActiveMembers.WithLabelValues(host, mode).Set(float64(activeMembers))
	if outcome == "success" {
		r.NegotiationSeconds.WithLabelValues(host, mode).Observe(negotiationSeconds)
	}
}

// RecordBreakerState tracks a breaker transition.
func (r *Registry) RecordBreakerState(host, class string, state int) {
	r.BreakerState.WithLabelValues(host, class).Set(float64(state))
	if state == 1 {
		r.BreakerTrips.WithLabelValues(host, class).Inc()
	}
}
