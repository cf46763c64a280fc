package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"osintwarn/internal/model"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osintwarn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osintwarn_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "endpoint"},
	)

	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osintwarn_evaluations_total",
			Help: "Total number of evaluated events",
		},
		[]string{"source", "outcome"}, // outcome: matched, unmatched
	)

	EvaluationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osintwarn_evaluation_confidence",
			Help:    "Confidence of matched evaluations",
			Buckets: []float64{.3, .4, .5, .6, .7, .8, .9},
		},
	)

	IndicatorsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osintwarn_indicators_loaded",
			Help: "Number of indicator definitions loaded at startup",
		},
	)

	// Kafka ingest metrics
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osintwarn_kafka_messages_total",
			Help: "Total number of Kafka messages consumed",
		},
		[]string{"status"}, // status: evaluated, invalid, read_error
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osintwarn_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

// ObserveEvaluation records one evaluation outcome for source.
func ObserveEvaluation(source string, ev model.Evaluation) {
	if !ev.Matched {
		EvaluationsTotal.WithLabelValues(source, "unmatched").Inc()
		return
	}
	EvaluationsTotal.WithLabelValues(source, "matched").Inc()
	EvaluationConfidence.Observe(ev.Confidence)
}
