package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietbeacon/epi/internal/core"
)

// serverMetrics exposes request counters and store gauges on /metrics.
// Each server owns its registry so several servers can live in one
// process without registration collisions.
type serverMetrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	lookupDuration prometheus.Histogram
}

func newServerMetrics(engine *core.Engine) *serverMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &serverMetrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epi",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "RPC requests handled, by endpoint.",
		}, []string{"endpoint"}),
		lookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "epi",
			Subsystem: "server",
			Name:      "lookup_duration_seconds",
			Help:      "Lookup latency as observed by the server.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 10, 6),
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "epi",
		Subsystem: "store",
		Name:      "procedures",
		Help:      "Procedures in the live snapshot.",
	}, func() float64 { return float64(engine.Snapshot().Count()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "epi",
		Subsystem: "store",
		Name:      "generation",
		Help:      "Generation of the live snapshot.",
	}, func() float64 { return float64(engine.Snapshot().Generation()) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "epi",
		Subsystem: "engine",
		Name:      "lookups_total",
		Help:      "Lookups answered since the engine started.",
	}, func() float64 { return float64(engine.Queries().Lookups) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "epi",
		Subsystem: "engine",
		Name:      "empty_lookups_total",
		Help:      "Lookups that returned no results.",
	}, func() float64 { return float64(engine.Queries().EmptyResults) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "epi",
		Subsystem: "engine",
		Name:      "reloads_total",
		Help:      "Snapshot reloads since the engine started.",
	}, func() float64 { return float64(engine.Queries().Reloads) })

	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
