// Package metrics exposes run and event counters in the Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/pkg/schema"
)

const namespace = "stepwise"

// Collector counts emitted events and run outcomes. It is an
// emit.Emitter and attaches to an engine's transition hooks.
type Collector struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	runs     *prometheus.CounterVec
	halts    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	steps    *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// New creates a Collector backed by its own registry. withRuntime adds the
// Go runtime and process collectors.
func New(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total emitted run events by workflow and event type.",
		}, []string{"workflow", "event"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total finished runs by workflow and final status.",
		}, []string{"workflow", "status"}),
		halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halts_total",
			Help:      "Total halted runs by workflow and halt reason.",
		}, []string{"workflow", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"workflow"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Number of step visits per finished run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"workflow"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
	}
	c.registry.MustRegister(c.events, c.runs, c.halts, c.duration, c.steps, c.inFlight)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Emit counts ev.
func (c *Collector) Emit(_ context.Context, ev schema.Event) error {
	c.events.WithLabelValues(ev.Workflow, string(ev.Event)).Inc()
	return nil
}

// Attach registers run transition hooks on h.
func (c *Collector) Attach(h *engine.Hooks) {
	h.OnAfter(engine.AnyStatus, schema.RunStatusRunning, func(context.Context, *engine.Result, schema.RunStatus, schema.RunStatus) error {
		c.inFlight.Inc()
		return nil
	})
	h.OnAfter(engine.AnyStatus, schema.RunStatusCompleted, c.finished)
	h.OnAfter(engine.AnyStatus, schema.RunStatusHalted, c.finished)
}

func (c *Collector) finished(_ context.Context, res *engine.Result, from, to schema.RunStatus) error {
	if from == schema.RunStatusRunning {
		c.inFlight.Dec()
	}
	c.runs.WithLabelValues(res.Workflow, string(to)).Inc()
	c.duration.WithLabelValues(res.Workflow).Observe(res.Duration().Seconds())
	c.steps.WithLabelValues(res.Workflow).Observe(float64(res.Sequence))
	if to == schema.RunStatusHalted {
		c.halts.WithLabelValues(res.Workflow, string(res.Reason)).Inc()
	}
	return nil
}
