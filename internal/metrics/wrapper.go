package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the trainer, predictor and transport
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc()                   { w.m.MLPredictions.Inc() }
func (w *MetricsWrapper) MLFailuresInc()                      { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLInvalidInputsInc()                 { w.m.MLInvalidInputs.Inc() }
func (w *MetricsWrapper) MLSuspiciousInputsInc()              { w.m.MLSuspiciousInputs.Inc() }
func (w *MetricsWrapper) MLLatencyObserve(v float64)          { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) { w.m.MLPredictionScores.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)             { w.m.MLModelAge.Set(v) }
func (w *MetricsWrapper) MLThresholdSet(v float64)            { w.m.MLThreshold.Set(v) }
func (w *MetricsWrapper) MLTrainingRunsInc()                  { w.m.TrainingRuns.Inc() }
func (w *MetricsWrapper) MLTrainingDurationObserve(v float64) { w.m.TrainingDuration.Observe(v) }
func (w *MetricsWrapper) MLAccuracyObserve(v float64)         { w.m.MLAccuracy.Observe(v) }

// ObserveRequest records one HTTP request.
func (w *MetricsWrapper) ObserveRequest(route, code string, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, code).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (w *MetricsWrapper) WSConnections() MetricsGauge {
	return &GaugeWrapper{w.m.WSConnections}
}

// EnrollmentsImportedAdd records n imported or updated enrollment rows.
func (w *MetricsWrapper) EnrollmentsImportedAdd(n int) {
	w.m.EnrollmentsImported.Add(float64(n))
}

func (w *MetricsWrapper) ErrorsTotal() MetricsCounter {
	return &CounterWrapper{w.m.ErrorsTotal}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}
