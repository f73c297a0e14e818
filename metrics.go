package sqlgate

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the gateway's collectors on a private registry so several
// gateways can live in one process (tests, library mode).
type metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlgate",
			Name:      "requests_total",
			Help:      "SQL requests by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlgate",
			Name:      "rejections_total",
			Help:      "Statements rejected by the admission checks, by rule.",
		}, []string{"rule"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sqlgate",
			Name:      "statement_duration_seconds",
			Help:      "Execution time of admitted statements, by head verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"verb"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sqlgate",
			Name:      "statements_in_flight",
			Help:      "Statements currently holding a database connection.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.rejections, m.duration, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observe(verb string, start time.Time, err *Error) {
	if err == nil {
		m.requests.WithLabelValues("ok").Inc()
		m.duration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
		return
	}
	m.requests.WithLabelValues(err.Kind.String()).Inc()
	switch {
	case err.Rule != "":
		m.rejections.WithLabelValues(string(err.Rule)).Inc()
	case err.Kind == KindExecution:
		m.duration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the gateway's Prometheus metrics.
func (g *Gateway) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{Registry: g.metrics.registry})
}
