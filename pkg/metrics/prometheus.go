package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	validations   *prometheus.CounterVec
	trainingRuns  *prometheus.CounterVec
	trainingTime  prometheus.Histogram
	modelVersion  prometheus.Gauge
	riskDenials   *prometheus.CounterVec
	candlesStored *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder on the default registerer.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_predictions_total",
				Help: "Predictions produced, by method, direction and risk approval",
			},
			[]string{"symbol", "method", "direction", "approved"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlesense_prediction_confidence",
				Help:    "Final confidence of produced predictions",
				Buckets: prometheus.LinearBuckets(0.5, 0.05, 10),
			},
			[]string{"method"},
		),
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_validations_total",
				Help: "Validated predictions by correctness",
			},
			[]string{"correct"},
		),
		trainingRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_training_runs_total",
				Help: "Retrain attempts by result",
			},
			[]string{"result"},
		),
		trainingTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "candlesense_training_duration_seconds",
				Help:    "Duration of retrain attempts",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		modelVersion: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "candlesense_model_version",
				Help: "Version of the active neural model",
			},
		),
		riskDenials: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_risk_denials_total",
				Help: "Failed risk checks by check name",
			},
			[]string{"check"},
		),
		candlesStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_candles_ingested_total",
				Help: "Candles written to the store by source",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesense_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlesense_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPrediction(symbol, method, direction string, confidence float64, approved bool) {
	r.predictions.WithLabelValues(symbol, method, direction, strconv.FormatBool(approved)).Inc()
	r.confidence.WithLabelValues(method).Observe(confidence)
}

func (r *Recorder) RecordValidation(correct bool) {
	r.validations.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (r *Recorder) RecordTraining(result string, seconds float64) {
	r.trainingRuns.WithLabelValues(result).Inc()
	r.trainingTime.Observe(seconds)
}

func (r *Recorder) SetModelVersion(version int64) {
	r.modelVersion.Set(float64(version))
}

func (r *Recorder) RecordRiskDenial(check string) {
	r.riskDenials.WithLabelValues(check).Inc()
}

func (r *Recorder) RecordCandles(source string, n int) {
	r.candlesStored.WithLabelValues(source).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
