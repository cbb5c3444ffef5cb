package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"student-perf/internal/common"
	"student-perf/internal/features"
)

// Sample is one labeled training row. Feature values may be missing; rows
// without a result are dropped before training.
type Sample struct {
	Attendance    *float64 `json:"attendance"`
	Marks         *float64 `json:"marks"`
	InternalScore *float64 `json:"internal_score"`
	Result        *int     `json:"result"`
}

// TrainerConfig controls the training procedure.
type TrainerConfig struct {
	Folds              int
	PermutationRepeats int
	RandomSeed         int64
	MinSamples         int
}

// DefaultTrainerConfig returns the standard training settings.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Folds:              common.DefaultCVFolds,
		PermutationRepeats: common.DefaultPermutationRepeats,
		RandomSeed:         common.DefaultRandomSeed,
		MinSamples:         common.DefaultMinSamples,
	}
}

// TrainReport summarizes a completed training run.
type TrainReport struct {
	Metrics              ClassificationReport `json:"metrics"`
	ROCAUC               float64              `json:"roc_auc"`
	ClassDistribution    map[int]float64      `json:"class_distribution"`
	ClassCounts          map[int]int          `json:"class_counts"`
	RecommendedThreshold float64              `json:"recommended_threshold"`
	MetricsCV            ClassificationReport `json:"metrics_cv"`
	UserThreshold        *float64             `json:"user_threshold"`
	SamplesUsed          int                  `json:"samples_used"`
	ModelPath            string               `json:"model_path"`
	MetadataPath         string               `json:"metadata_path"`
	Timestamp            string               `json:"timestamp"`
}

// Trainer fits, evaluates and persists the calibrated model.
type Trainer struct {
	config  TrainerConfig
	store   *ModelStore
	fitter  Fitter
	metrics MetricsInterface
	now     func() time.Time
}

// NewTrainer creates a trainer persisting to store. metrics may be nil.
func NewTrainer(config TrainerConfig, store *ModelStore, metrics MetricsInterface) *Trainer {
	return &Trainer{
		config:  config,
		store:   store,
		fitter:  NewPipeline(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Train fits a model on samples and persists it with its metadata.
func (t *Trainer) Train(ctx context.Context, samples []Sample) (*TrainReport, error) {
	start := t.now()

	model, cv, meta, err := t.Fit(ctx, samples)
	if err != nil {
		if t.metrics != nil {
			t.metrics.MLFailuresInc()
		}
		return nil, err
	}

	if err := t.store.Save(model, meta); err != nil {
		return nil, err
	}

	if t.metrics != nil {
		t.metrics.MLTrainingRunsInc()
		t.metrics.MLTrainingDurationObserve(t.now().Sub(start).Seconds())
		t.metrics.MLAccuracyObserve(cv.Accuracy)
	}

	report := &TrainReport{
		Metrics:              cv,
		ROCAUC:               *meta.ROCAUC,
		ClassDistribution:    meta.ClassDistribution,
		ClassCounts:          meta.ClassCounts,
		RecommendedThreshold: *meta.RecommendedThreshold,
		MetricsCV:            cv,
		UserThreshold:        meta.UserThreshold,
		SamplesUsed:          meta.SamplesUsed,
		ModelPath:            t.store.ModelPath(),
		MetadataPath:         t.store.MetadataPath(),
		Timestamp:            t.now().UTC().Format(time.RFC3339Nano),
	}

	log.Info().
		Int("samples", report.SamplesUsed).
		Float64("accuracy", cv.Accuracy).
		Float64("roc_auc", report.ROCAUC).
		Float64("recommended_threshold", report.RecommendedThreshold).
		Dur("elapsed", t.now().Sub(start)).
		Msg("Model training completed")
	return report, nil
}

// Fit runs the full training procedure without persisting anything. It returns
// the calibrated model, the cross-validated metrics of the uncalibrated pipeline
// and the metadata document.
func (t *Trainer) Fit(ctx context.Context, samples []Sample) (*FittedModel, ClassificationReport, *Metadata, error) {
	var none ClassificationReport

	labeled, err := labeledSamples(samples)
	if err != nil {
		return nil, none, nil, err
	}

	minSamples := t.config.MinSamples
	if minSamples <= 0 {
		minSamples = common.DefaultMinSamples
	}
	if len(labeled) < minSamples {
		return nil, none, nil, &InsufficientDataError{Count: len(labeled), Required: minSamples}
	}

	log.Info().Int("samples", len(labeled)).Msg("Starting model training")

	y := make([]float64, len(labeled))
	for i, s := range labeled {
		y[i] = float64(*s.Result)
	}
	neg, pos := classCounts(y)
	if neg == 0 || pos == 0 {
		class := 0
		if pos > 0 {
			class = 1
		}
		return nil, none, nil, &SingleClassError{Class: class, Count: len(y)}
	}

	x, imputation, err := imputeFeatures(labeled)
	if err != nil {
		return nil, none, nil, err
	}

	folds := t.config.Folds
	if folds < 2 {
		folds = common.DefaultCVFolds
	}

	cv, err := CrossValidate(ctx, t.fitter, x, y, min(folds, len(y)))
	if err != nil {
		return nil, none, nil, fmt.Errorf("cross-validation: %w", err)
	}
	log.Info().
		Float64("accuracy", cv.Accuracy).
		Float64("precision", cv.Precision).
		Float64("recall", cv.Recall).
		Float64("f1_score", cv.F1).
		Msg("Cross-validated metrics computed")

	if err := ctx.Err(); err != nil {
		return nil, none, nil, err
	}
	reference, err := t.fitter.Fit(x, y)
	if err != nil {
		return nil, none, nil, fmt.Errorf("reference fit: %w", err)
	}

	repeats := t.config.PermutationRepeats
	if repeats <= 0 {
		repeats = common.DefaultPermutationRepeats
	}
	importances := featureImportances(reference, x, y, features.Names, PermutationConfig{
		Repeats: repeats,
		Seed:    t.config.RandomSeed,
	})

	if err := ctx.Err(); err != nil {
		return nil, none, nil, err
	}
	calibrated, err := FitCalibrated(ctx, t.fitter, x, y, folds)
	if err != nil {
		return nil, none, nil, fmt.Errorf("calibration: %w", err)
	}
	log.Info().Int("members", len(calibrated.Members)).Msg("Calibrated model fitted")

	scores := calibrated.PredictProba(x)
	rocAUC := ROCAUC(y, scores)
	threshold := BestF1Threshold(y, scores, common.RecommendedThresholdMin)

	now := t.now().UTC()
	n := float64(len(y))
	coefficients := make(map[string]float64, len(features.Names))
	for i, name := range features.Names {
		coefficients[name] = reference.Coef[i]
	}
	intercept := reference.Intercept

	meta := &Metadata{
		GeneratedAt:           now.Format(time.RFC3339Nano),
		FeatureNames:          append([]string(nil), features.Names...),
		SamplesUsed:           len(y),
		ClassCounts:           map[int]int{0: neg, 1: pos},
		ClassDistribution:     map[int]float64{0: float64(neg) / n, 1: float64(pos) / n},
		Imputation:            imputation,
		Coefficients:          coefficients,
		Intercept:             &intercept,
		PermutationImportance: importances,
		MetricsCV:             &cv,
		ROCAUC:                &rocAUC,
		RecommendedThreshold:  &threshold,
		Scaler:                &ScalerStats{Mean: reference.Mean, Scale: reference.Scale},
	}

	model := &FittedModel{
		FeatureNames: append([]string(nil), features.Names...),
		Calibrated:   *calibrated,
		TrainedAt:    now,
	}
	return model, cv, meta, nil
}

// labeledSamples drops rows without a result and validates the rest.
func labeledSamples(samples []Sample) ([]Sample, error) {
	out := make([]Sample, 0, len(samples))
	for i, s := range samples {
		if s.Result == nil {
			continue
		}
		if r := *s.Result; r != 0 && r != 1 {
			return nil, (&features.InvalidInputError{
				Field:  "result",
				Reason: features.ReasonOutOfRange,
				Value:  float64(r),
				Min:    0,
				Max:    1,
			}).InItem(i)
		}

		for _, f := range []struct {
			name  string
			value *float64
		}{
			{common.FeatureAttendance, s.Attendance},
			{common.FeatureMarks, s.Marks},
			{common.FeatureInternalScore, s.InternalScore},
		} {
			if f.value == nil {
				continue
			}
			if _, err := features.Validate(f.name, f.value); err != nil {
				var invalid *features.InvalidInputError
				if errors.As(err, &invalid) {
					return nil, invalid.InItem(i)
				}
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// imputeFeatures builds the feature matrix, filling missing values with the
// column median of the present values.
func imputeFeatures(samples []Sample) (*mat.Dense, map[string]ImputationStat, error) {
	x := mat.NewDense(len(samples), features.Count, nil)
	imputation := make(map[string]ImputationStat, features.Count)

	for j, name := range features.Names {
		var present []float64
		var missing []int
		for i, s := range samples {
			v := sampleValue(s, j)
			if v == nil {
				missing = append(missing, i)
				continue
			}
			present = append(present, *v)
			x.Set(i, j, *v)
		}

		if len(missing) == 0 {
			imputation[name] = ImputationStat{}
			continue
		}

		median := 0.0
		if len(present) > 0 {
			m, err := stats.Median(present)
			if err != nil {
				return nil, nil, fmt.Errorf("median of %s: %w", name, err)
			}
			median = m
		} else {
			log.Warn().Str("feature", name).Msg("No values present, imputing 0")
		}

		for _, i := range missing {
			x.Set(i, j, median)
		}
		imputation[name] = ImputationStat{ImputedCount: len(missing), MedianUsed: &median}
		log.Warn().
			Int("count", len(missing)).
			Str("feature", name).
			Float64("median", median).
			Msgf("Filled %d missing values in %s", len(missing), name)
	}
	return x, imputation, nil
}

func sampleValue(s Sample, j int) *float64 {
	switch j {
	case 0:
		return s.Attendance
	case 1:
		return s.Marks
	default:
		return s.InternalScore
	}
}
