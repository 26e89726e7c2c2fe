// Package metrics exposes runner activity as Prometheus collectors.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caffeineduck/doctest/runner"
)

// Metrics counts examples and runs.
type Metrics struct {
	Examples *prometheus.CounterVec
	Runs     prometheus.Counter
	Duration prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Examples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doctest_examples_total",
				Help: "Examples run, by outcome.",
			},
			[]string{"outcome"},
		),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doctest_runs_total",
			Help: "DocTests run to completion.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doctest_example_duration_seconds",
			Help:    "Time spent executing one example.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Examples, m.Runs, m.Duration)
	}
	return m
}

// Hooks returns runner hooks that record into m.
func (m *Metrics) Hooks() runner.Hooks {
	return runner.Hooks{
		OnExampleDone: func(_ context.Context, e runner.ExampleEvent) {
			m.Examples.WithLabelValues(e.Outcome.String()).Inc()
			m.Duration.Observe(e.Duration.Seconds())
		},
		OnRunDone: func(context.Context, runner.RunEvent) {
			m.Runs.Inc()
		},
	}
}
