// Package metrics provides Prometheus metrics instrumentation for the
// demandcast service.
//
// It exposes operational metrics about the forecasting pipeline, including
// the duration of each stage (history fetch, training, prediction), the
// size of the model catalog, the accuracy of the most recent training runs,
// and error tracking. All metrics are exposed via the /metrics HTTP
// endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - demandcast_history_fetch_seconds: Histogram of sales history fetch duration
//   - demandcast_train_seconds: Histogram of model training duration
//   - demandcast_predict_seconds: Histogram of forecast generation duration
//   - demandcast_trained_models: Gauge of stored model artifacts
//   - demandcast_last_training_mape: Gauge of last holdout MAPE per SKU
//   - demandcast_trainings_total: Counter of completed trainings by outcome
//   - demandcast_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	HistoryFetchSeconds prometheus.Histogram
	TrainSeconds        prometheus.Histogram
	PredictSeconds      prometheus.Histogram
	TrainedModels       prometheus.Gauge
	LastTrainingMAPE    *prometheus.GaugeVec
	TrainingsTotal      *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HistoryFetchSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "demandcast_history_fetch_seconds",
			Help:    "Time spent fetching sales history from the data source",
			Buckets: prometheus.DefBuckets,
		}),

		TrainSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "demandcast_train_seconds",
			Help:    "Time spent training and evaluating a model",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		PredictSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "demandcast_predict_seconds",
			Help:    "Time spent generating a forecast",
			Buckets: prometheus.DefBuckets,
		}),

		TrainedModels: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "demandcast_trained_models",
			Help: "Number of model artifacts currently stored",
		}),

		LastTrainingMAPE: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "demandcast_last_training_mape",
			Help: "Holdout MAPE of the most recent training run",
		}, []string{"sku"}),

		TrainingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_trainings_total",
			Help: "Total completed training runs by outcome",
		}, []string{"outcome"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching sales history.
func (m *Metrics) RecordFetch(seconds float64) {
	m.HistoryFetchSeconds.Observe(seconds)
}

// RecordTrain records the time spent training and the outcome.
func (m *Metrics) RecordTrain(seconds float64, outcome string) {
	m.TrainSeconds.Observe(seconds)
	m.TrainingsTotal.WithLabelValues(outcome).Inc()
}

// RecordPredict records the time spent generating a forecast.
func (m *Metrics) RecordPredict(seconds float64) {
	m.PredictSeconds.Observe(seconds)
}

// SetTrainedModels sets the stored artifact count.
func (m *Metrics) SetTrainedModels(count int) {
	m.TrainedModels.Set(float64(count))
}

// SetLastMAPE sets the holdout MAPE of the latest training run for a SKU.
func (m *Metrics) SetLastMAPE(sku string, mape float64) {
	m.LastTrainingMAPE.WithLabelValues(sku).Set(mape)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
