package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "colorsignal"

// Metrics holds the session controller's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PredictionCycles  *prometheus.CounterVec
	PredictionLatency prometheus.Histogram
	FeedbackSubmitted prometheus.Counter
	GateDecisions     *prometheus.CounterVec
	HistoryLength     prometheus.Gauge
	ConnectionStatus  *prometheus.GaugeVec
	PatternUploads    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// outcome: success, error, not_ready; category empty on success
		PredictionCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "cycles_total",
			Help:      "Prediction cycles by outcome and error category",
		}, []string{"outcome", "category"}),

		PredictionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prediction",
			Name:      "latency_seconds",
			Help:      "Duration of a prediction cycle including feedback submission",
			Buckets:   prometheus.DefBuckets,
		}),

		FeedbackSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "submitted_total",
			Help:      "Feedback flags accepted by the prediction service",
		}),

		// action: accept, ignore, advance
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Capacity gate decisions by action",
		}, []string{"action"}),

		HistoryLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "length",
			Help:      "Current number of observations in the history buffer",
		}),

		ConnectionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "status",
			Help:      "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),

		// result: accepted, invalid, rejected
		PatternUploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patterns",
			Name:      "uploads_total",
			Help:      "Bulk pattern uploads by result",
		}, []string{"result"}),
	}
}

// ObserveCycle records one finished prediction cycle.
func (m *Metrics) ObserveCycle(outcome, category string, d time.Duration) {
	if m == nil {
		return
	}
	m.PredictionCycles.WithLabelValues(outcome, category).Inc()
	m.PredictionLatency.Observe(d.Seconds())
}

func (m *Metrics) AddFeedbackSubmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FeedbackSubmitted.Add(float64(n))
}

func (m *Metrics) GateDecision(action string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(action).Inc()
}

func (m *Metrics) SetHistoryLength(n int) {
	if m == nil {
		return
	}
	m.HistoryLength.Set(float64(n))
}

// SetConnectionStatus marks status as current and zeroes the others.
func (m *Metrics) SetConnectionStatus(status string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.ConnectionStatus.WithLabelValues(s).Set(0)
	}
	m.ConnectionStatus.WithLabelValues(status).Set(1)
}

func (m *Metrics) PatternUpload(result string) {
	if m == nil {
		return
	}
	m.PatternUploads.WithLabelValues(result).Inc()
}
