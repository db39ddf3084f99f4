package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission results for checkin_server_changesets_total.
const (
	ResultAccepted = "accepted"
	ResultStale    = "stale"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
)

// Metrics holds Prometheus metrics for the changeset server.
//
// Metrics:
//   - checkin_server_changesets_total{result} - submissions by result
//   - checkin_server_overrides_total - accepted changesets that forced past policies
//   - checkin_server_submit_duration_seconds - submission handling time
//   - checkin_server_head - newest changeset id
type Metrics struct {
	ChangesetsTotal *prometheus.CounterVec
	OverridesTotal  prometheus.Counter
	SubmitDuration  prometheus.Histogram
	Head            prometheus.Gauge
}

// NewMetrics creates the server metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChangesetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkin_server_changesets_total",
				Help: "Total number of changeset submissions by result",
			},
			[]string{"result"}, // accepted, stale, rejected, invalid
		),
		OverridesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "checkin_server_overrides_total",
				Help: "Total number of accepted changesets that overrode policy failures",
			},
		),
		SubmitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkin_server_submit_duration_seconds",
				Help:    "Duration of changeset submission handling in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		Head: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "checkin_server_head",
				Help: "Id of the newest changeset",
			},
		),
	}
}
