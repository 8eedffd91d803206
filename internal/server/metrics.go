package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics instruments the optimization jobs the server runs.
type metrics struct {
	sessionsTotal *prometheus.CounterVec
	iterations    prometheus.Histogram
	running       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relax_sessions_total",
			Help: "Optimization sessions by termination reason and backend.",
		}, []string{"reason", "backend"}),
		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relax_session_iterations",
			Help:    "Completed iterations per optimization session.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relax_sessions_running",
			Help: "Optimization sessions currently running.",
		}),
	}
}
