// Package metrics exports the federation's Prometheus instrumentation:
// command-queue depth gauges, grant-latency histograms and registration
// counters, generalizing the teacher's ad hoc AgentMetrics/FederationStats
// structs into real exported metrics per SPEC_FULL.md's domain stack table.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the metrics a core or broker exposes. Callers register it
// with their own *prometheus.Registry (or the default one) via Register.
type Registry struct {
	CommandQueueDepth *prometheus.GaugeVec
	GrantLatency      prometheus.Histogram
	Registrations     *prometheus.CounterVec
	ActiveFederates   prometheus.Gauge
}

// NewRegistry constructs the metric collectors. component distinguishes a
// core's metrics from a broker's when both run in the same process, the way
// the teacher tags "agent"/"router" in its health-check metrics.
func NewRegistry(component string) *Registry {
	labels := prometheus.Labels{"component": component}

	return &Registry{
		CommandQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "helics",
			Name:        "command_queue_depth",
			Help:        "Number of frames currently queued on the command thread.",
			ConstLabels: labels,
		}, []string{"class"}),
		GrantLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "helics",
			Name:        "grant_latency_seconds",
			Help:        "Wall-clock time between a time request and its grant.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "helics",
			Name:        "registrations_total",
			Help:        "Interface and federate registrations, by outcome.",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		ActiveFederates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "helics",
			Name:        "active_federates",
			Help:        "Number of federates not yet finalized.",
			ConstLabels: labels,
		}),
	}
}

// Register adds every collector to reg.
func (r *Registry) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		r.CommandQueueDepth, r.GrantLatency, r.Registrations, r.ActiveFederates,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
