// Package metrics exports dataspace activity as Prometheus metrics.
//
// Collector implements both dataspace.Tracer and ground.StepObserver, so a
// single value can be handed to the dataspace and to its Ground.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// Namespace prefixes every metric name.
const Namespace = "dataspace"

// Collector counts what a dataspace commits.
//
// Thread-safety: Collector is safe for concurrent use (Prometheus metrics
// are atomic).
type Collector struct {
	patches    *prometheus.CounterVec
	messages   prometheus.Counter
	started    prometheus.Counter
	terminated *prometheus.CounterVec
	live       prometheus.Gauge
	steps      prometheus.Histogram
	exhausted  prometheus.Counter
}

// NewCollector registers the dataspace metrics on reg.
// Panics if they are already registered there.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		patches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "patches_total",
			Help:      "Assertion count changes applied, by transition",
		}, []string{"transition"}),
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Messages delivered",
		}),
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actors_started_total",
			Help:      "Actors spawned",
		}),
		terminated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "actors_terminated_total",
			Help:      "Actors that left the dataspace, by outcome",
		}, []string{"outcome"}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "actors_live",
			Help:      "Actors currently in the dataspace",
		}),
		steps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ground_step_rounds",
			Help:      "Dataspace rounds run per Ground step",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		exhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ground_fuel_exhausted_total",
			Help:      "Ground steps that ran out of fuel while still busy",
		}),
	}
}

// ActorStarted implements dataspace.Tracer.
func (c *Collector) ActorStarted(string) {
	c.started.Inc()
	c.live.Inc()
}

// ActorTerminated implements dataspace.Tracer.
func (c *Collector) ActorTerminated(_ string, err error) {
	outcome := "normal"
	if err != nil {
		outcome = "failed"
	}
	c.terminated.WithLabelValues(outcome).Inc()
	c.live.Dec()
}

// Patch implements dataspace.Tracer.
func (c *Collector) Patch(_ string, _ ir.IRValue, tr bag.Transition) {
	c.patches.WithLabelValues(tr.String()).Inc()
}

// Message implements dataspace.Tracer.
func (c *Collector) Message(string, ir.IRValue) {
	c.messages.Inc()
}

// ObserveStep implements ground.StepObserver.
func (c *Collector) ObserveStep(rounds int, busy bool) {
	c.steps.Observe(float64(rounds))
	if busy {
		c.exhausted.Inc()
	}
}
