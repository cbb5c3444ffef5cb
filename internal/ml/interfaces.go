// Package ml implements the student pass/fail model: a standardized, class-balanced
// logistic regression with Platt calibration, its training pipeline (imputation,
// stratified cross-validation, permutation importance, threshold recommendation),
// persistence of the model and its metadata document, and inference with
// explanations and bounded improvement suggestions.
package ml

import "gonum.org/v1/gonum/mat"

// MetricsInterface defines metrics methods needed by the trainer and predictor
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLInvalidInputsInc()
	MLSuspiciousInputsInc()
	MLLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	MLModelAgeSet(float64)
	MLThresholdSet(float64)
	MLTrainingRunsInc()
	MLTrainingDurationObserve(float64)
	MLAccuracyObserve(float64)
}

// Classifier produces the probability of the positive class (pass) for every row of x.
type Classifier interface {
	PredictProba(x *mat.Dense) []float64
}

// Fitter trains a linear model on raw (unscaled) features and 0/1 labels.
type Fitter interface {
	Fit(x *mat.Dense, y []float64) (*LinearModel, error)
}
