// Package metrics exposes pipeline and roll pressure state to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

const namespace = "rollpressure"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RollPressure *prometheus.GaugeVec
	PosScore     *prometheus.GaugeVec
	DaysToExpiry *prometheus.GaugeVec
	Alert        *prometheus.GaugeVec
	InvalidRows  prometheus.Gauge

	PipelineRuns     *prometheus.CounterVec
	CFTCRequests     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
}

// New builds and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RollPressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roll_pressure",
			Help:      "Latest roll pressure per market",
		}, []string{"market"}),
		PosScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pos_score",
			Help:      "Latest positioning percentile score per market",
		}, []string{"market"}),
		DaysToExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "days_to_expiry",
			Help:      "Calendar days to front-month expiry per market",
		}, []string{"market"}),
		Alert: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert",
			Help:      "1 when the latest row for the market is in alert",
		}, []string{"market"}),
		InvalidRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invalid_rows",
			Help:      "Rows flagged invalid in the last computed batch",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		CFTCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cftc_requests_total",
			Help:      "CFTC API requests by outcome",
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of a full pipeline run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	m.registry.MustRegister(
		m.RollPressure,
		m.PosScore,
		m.DaysToExpiry,
		m.Alert,
		m.InvalidRows,
		m.PipelineRuns,
		m.CFTCRequests,
		m.PipelineDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveRows sets the per-market gauges from the latest row of each market.
// Markets whose latest row is invalid keep days and alert but drop the
// undefined score gauges.
func (m *Metrics) ObserveRows(rows []rollpressure.DerivedRow) {
	invalid := 0
	for _, r := range rows {
		if !r.Valid {
			invalid++
		}
	}
	m.InvalidRows.Set(float64(invalid))

	for _, r := range rollpressure.LatestPerMarket(rows) {
		if rollpressure.Defined(r.RollPressure) {
			m.RollPressure.WithLabelValues(r.Market).Set(r.RollPressure)
			m.PosScore.WithLabelValues(r.Market).Set(r.PosScore)
		} else {
			m.RollPressure.DeleteLabelValues(r.Market)
			m.PosScore.DeleteLabelValues(r.Market)
		}
		m.DaysToExpiry.WithLabelValues(r.Market).Set(float64(r.DaysToExpiry))
		alert := 0.0
		if r.Alert {
			alert = 1
		}
		m.Alert.WithLabelValues(r.Market).Set(alert)
	}
}

// CFTCRequest counts one CFTC request outcome. Its signature matches
// cftc.RequestObserver.
func (m *Metrics) CFTCRequest(status string) {
	m.CFTCRequests.WithLabelValues(status).Inc()
}

// RunFinished records a pipeline run outcome and its duration.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	m.PipelineRuns.WithLabelValues(status).Inc()
	m.PipelineDuration.Observe(d.Seconds())
}
