// Package metrics provides Prometheus metrics collection for the student
// performance service. It defines the prediction, training and transport
// metrics exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// ML and prediction metrics
	MLPredictions      prometheus.Counter   // Total number of predictions served
	MLFailures         prometheus.Counter   // Total number of prediction or training failures
	MLInvalidInputs    prometheus.Counter   // Total number of rejected inputs
	MLSuspiciousInputs prometheus.Counter   // Total number of predictions flagged as inconsistent
	MLModelAge         prometheus.Gauge     // Age of the loaded model in seconds
	MLThreshold        prometheus.Gauge     // Decision threshold in use
	MLLatency          prometheus.Histogram // Prediction latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of pass probabilities

	// Training metrics
	TrainingRuns     prometheus.Counter   // Completed training runs
	TrainingDuration prometheus.Histogram // Training duration in seconds
	MLAccuracy       prometheus.Histogram // Cross-validated accuracy of each training run

	// Transport metrics
	HTTPRequests        *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration        *prometheus.HistogramVec // Request duration by route
	WSConnections       prometheus.Gauge         // Open what-if websocket connections
	EnrollmentsImported prometheus.Counter       // Enrollment rows imported from CSV

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered

	gatherer prometheus.Gatherer
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	gatherer := prometheus.DefaultGatherer
	if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of predictions served",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of prediction or training failures",
		}),
		MLInvalidInputs: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_invalid_inputs_total",
			Help: "Total number of inputs rejected by validation",
		}),
		MLSuspiciousInputs: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_suspicious_inputs_total",
			Help: "Total number of predictions flagged as internally inconsistent",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model in seconds",
		}),
		MLThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_decision_threshold",
			Help: "Decision threshold applied to pass probabilities",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted pass probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_training_runs_total",
			Help: "Total number of completed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		MLAccuracy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_accuracy",
			Help:    "Cross-validated accuracy of each training run",
			Buckets: []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_whatif_connections",
			Help: "Number of open what-if websocket connections",
		}),
		EnrollmentsImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollments_imported_total",
			Help: "Total number of enrollment rows imported",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
		gatherer: gatherer,
	}
}

// GetErrorRate returns failures over all prediction attempts, or 0 if nothing
// has been recorded yet.
func (m *Metrics) GetErrorRate() float64 {
	var predictions, failures float64

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, metric := range mf.Metric {
				predictions = metric.GetCounter().GetValue()
			}
		case "ml_failures_total":
			for _, metric := range mf.Metric {
				failures = metric.GetCounter().GetValue()
			}
		}
	}

	// Avoid division by zero
	if predictions+failures == 0 {
		return 0
	}

	return failures / (predictions + failures)
}
