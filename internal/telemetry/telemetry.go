// Package telemetry exports simulation frames as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvandessel/nexus/internal/scheduler"
)

// Metrics holds the collectors for one simulator. It implements
// scheduler.Observer.
type Metrics struct {
	Level          prometheus.Gauge
	Iteration      prometheus.Gauge
	ActiveNodes    prometheus.Gauge
	MeanActivation prometheus.Gauge
	Running        prometheus.Gauge
	RecursionDepth prometheus.Gauge
	Introspection  prometheus.Gauge
	NodeActivation *prometheus.GaugeVec
	Ticks          prometheus.Counter
	Events         *prometheus.CounterVec
	LevelHistogram prometheus.Histogram
}

// New registers the nexus collectors with reg. Use a fresh registry per
// simulator; registering twice with the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Level: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_consciousness_level",
			Help: "Published level: mean recursive activation times 100",
		}),
		Iteration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_iteration",
			Help: "Ticks since start or last reset",
		}),
		ActiveNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_active_nodes",
			Help: "Nodes with activation above 0.1",
		}),
		MeanActivation: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_mean_activation",
			Help: "Mean activation over all nodes",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_running",
			Help: "1 while the simulation is running, 0 while idle",
		}),
		RecursionDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_recursion_depth",
			Help: "Recursion depth control parameter",
		}),
		Introspection: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_introspection_rate",
			Help: "Introspection rate control parameter",
		}),
		NodeActivation: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_node_activation",
				Help: "Activation of each node",
			},
			[]string{"node", "role"},
		),
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexus_ticks_total",
			Help: "Total number of committed ticks",
		}),
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_events_total",
				Help: "Total number of simulation events by kind",
			},
			[]string{"event"},
		),
		LevelHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_consciousness_level_distribution",
			Help:    "Distribution of the published level per tick",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
	}
}

// OnFrame updates every collector from f.
func (m *Metrics) OnFrame(f scheduler.Frame) {
	st := f.Status

	m.Events.WithLabelValues(string(f.Event)).Inc()
	if f.Event == scheduler.EventTick {
		m.Ticks.Inc()
		m.LevelHistogram.Observe(st.Level)
	}

	m.Level.Set(st.Level)
	m.Iteration.Set(float64(st.Iteration))
	m.ActiveNodes.Set(float64(st.ActiveNodes))
	m.MeanActivation.Set(st.MeanActivation)
	m.RecursionDepth.Set(float64(st.Params.RecursionDepth))
	m.Introspection.Set(st.Params.IntrospectionRate)
	if st.Running {
		m.Running.Set(1)
	} else {
		m.Running.Set(0)
	}

	for _, n := range f.Nodes {
		m.NodeActivation.WithLabelValues(n.ID, n.Role.String()).Set(n.Activation)
	}
}
