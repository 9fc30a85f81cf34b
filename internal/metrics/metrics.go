// Package metrics counts activity and command outcomes on a private
// Prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's collectors.
type Metrics struct {
	registry *prometheus.Registry

	activities *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    prometheus.Counter
	commands   *prometheus.CounterVec
	truncated  prometheus.Counter
	inflight   prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_activity_total",
				Help: "Total number of finished activities",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_activity_duration_seconds",
				Help:    "Duration of activities",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckhand_activity_retries_total",
			Help: "Total number of activity retries",
		}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_command_total",
				Help: "Total number of processed commands",
			},
			[]string{"status"},
		),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckhand_report_truncated_total",
			Help: "Total number of reports truncated to fit the size budget",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deckhand_activity_inflight",
			Help: "Activities currently running",
		}),
	}
	m.registry.MustRegister(m.activities, m.duration, m.retries, m.commands, m.truncated, m.inflight)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Hooks returns activity engine hooks feeding the collectors.
func (m *Metrics) Hooks() activity.Hooks {
	return activity.Hooks{
		OnStart: func(ctx context.Context, e activity.Event) {
			m.inflight.Inc()
		},
		OnFinish: func(ctx context.Context, e activity.Event) {
			m.inflight.Dec()
			outcome := string(e.Outcome)
			m.activities.WithLabelValues(outcome).Inc()
			m.duration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
			if e.Attempts > 1 {
				m.retries.Add(float64(e.Attempts - 1))
			}
		},
	}
}

// ObserveCommand counts a processed command.
func (m *Metrics) ObserveCommand(status domain.Status, truncated bool) {
	m.commands.WithLabelValues(string(status)).Inc()
	if truncated {
		m.truncated.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
