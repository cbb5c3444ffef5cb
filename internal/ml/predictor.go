package ml

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"student-perf/internal/features"
)

// Contribution effects.
const (
	EffectIncrease = "increase"
	EffectDecrease = "decrease"
	EffectNeutral  = "neutral"
)

// Reason is one ranked feature contribution.
type Reason struct {
	Feature      string  `json:"feature"`
	Effect       string  `json:"effect"`
	Contribution float64 `json:"contribution"`
}

// Explanation describes which features drove a prediction.
type Explanation struct {
	TopReasons         []Reason           `json:"top_reasons"`
	FeatureImportances map[string]float64 `json:"feature_importances"`
	Coefficients       map[string]float64 `json:"coefficients"`
}

// PredictionResult is the full outcome of one prediction.
type PredictionResult struct {
	StudentID         *int64       `json:"student_id,omitempty"`
	CourseID          *int64       `json:"course_id,omitempty"`
	PredictedResult   int          `json:"predicted_result"`
	Probability       float64      `json:"probability"`
	ThresholdUsed     float64      `json:"threshold_used"`
	SuspiciousInput   bool         `json:"suspicious_input"`
	SuspiciousReasons []string     `json:"suspicious_reasons,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	Explanation       Explanation  `json:"explanation"`
	Feedback          []Suggestion `json:"feedback"`
	FeedbackParagraph string       `json:"feedback_paragraph"`
	FinalExamScore    *float64     `json:"final_exam_score,omitempty"`
}

// BatchItem is one batch input with optional identifiers passed through to its result.
type BatchItem struct {
	StudentID *int64 `json:"student_id,omitempty"`
	CourseID  *int64 `json:"course_id,omitempty"`
	features.Input
}

// BatchResult holds every prediction of a batch call.
type BatchResult struct {
	Predictions []PredictionResult `json:"predictions"`
	Total       int                `json:"total"`
}

// Predictor serves predictions from one loaded model. It is immutable after
// construction and safe for concurrent use.
type Predictor struct {
	model           *FittedModel
	meta            *Metadata
	threshold       float64
	thresholdSource string
	metrics         MetricsInterface
}

// NewPredictor loads the model and metadata from store and resolves the
// decision threshold once.
func NewPredictor(store *ModelStore, metrics MetricsInterface) (*Predictor, error) {
	model, meta, err := store.Load()
	if err != nil {
		return nil, err
	}

	threshold, source := store.ResolveThreshold(meta)
	p := NewPredictorFromModel(model, meta, threshold, source, metrics)

	log.Info().
		Float64("threshold", threshold).
		Str("source", source).
		Str("model_path", store.ModelPath()).
		Msg("Model and metadata loaded")
	return p, nil
}

// NewPredictorFromModel wraps an already loaded model.
func NewPredictorFromModel(model *FittedModel, meta *Metadata, threshold float64, source string, metrics MetricsInterface) *Predictor {
	if meta == nil {
		meta = &Metadata{}
	}

	p := &Predictor{
		model:           model,
		meta:            meta,
		threshold:       threshold,
		thresholdSource: source,
		metrics:         metrics,
	}

	if metrics != nil {
		metrics.MLThresholdSet(threshold)
		if !model.TrainedAt.IsZero() {
			metrics.MLModelAgeSet(time.Since(model.TrainedAt).Seconds())
		}
	}
	return p
}

// Threshold returns the decision threshold in use and its source.
func (p *Predictor) Threshold() (float64, string) {
	return p.threshold, p.thresholdSource
}

// Metadata returns the metadata document of the loaded model.
func (p *Predictor) Metadata() *Metadata {
	return p.meta
}

// Predict validates one input and returns its probability, label, explanation
// and improvement suggestions.
func (p *Predictor) Predict(in features.Input) (*PredictionResult, error) {
	start := time.Now()

	v, err := features.ValidateInput(in)
	if err != nil {
		p.countInvalid()
		return nil, err
	}

	probability := p.model.Probability(v.Vector())
	if math.IsNaN(probability) {
		p.countFailure()
		return nil, errors.New("model returned an undefined probability")
	}

	result := p.build(v, probability)
	p.observe(result, start)

	log.Debug().
		Float64("probability", result.Probability).
		Int("predicted_result", result.PredictedResult).
		Bool("suspicious", result.SuspiciousInput).
		Msg("Prediction served")
	return result, nil
}

// PredictBatch validates every item before computing anything; one invalid
// item fails the whole call with an error naming its index.
func (p *Predictor) PredictBatch(items []BatchItem) (*BatchResult, error) {
	start := time.Now()

	validated := make([]features.Validated, len(items))
	for i, item := range items {
		v, err := features.ValidateInput(item.Input)
		if err != nil {
			p.countInvalid()
			var invalid *features.InvalidInputError
			if errors.As(err, &invalid) {
				return nil, invalid.InItem(i)
			}
			return nil, err
		}
		validated[i] = v
	}

	out := &BatchResult{Predictions: make([]PredictionResult, 0, len(items)), Total: len(items)}
	if len(items) == 0 {
		return out, nil
	}

	x := mat.NewDense(len(items), features.Count, nil)
	for i, v := range validated {
		x.SetRow(i, v.Vector())
	}
	probs := p.model.Calibrated.PredictProba(x)

	for i, v := range validated {
		if math.IsNaN(probs[i]) {
			p.countFailure()
			return nil, errors.New("model returned an undefined probability")
		}
		result := p.build(v, probs[i])
		result.StudentID = items[i].StudentID
		result.CourseID = items[i].CourseID
		p.observe(result, start)
		out.Predictions = append(out.Predictions, *result)
	}

	log.Debug().Int("items", len(items)).Dur("elapsed", time.Since(start)).Msg("Batch prediction served")
	return out, nil
}

func (p *Predictor) build(v features.Validated, probability float64) *PredictionResult {
	raw := v.Vector()
	notes := DetectSuspicion(v)

	label := 0
	if probability >= p.threshold {
		label = 1
	}

	result := &PredictionResult{
		PredictedResult: label,
		Probability:     probability,
		ThresholdUsed:   p.threshold,
		SuspiciousInput: len(notes) > 0,
		Explanation:     p.explain(raw),
		FinalExamScore:  v.FinalExamScore,
	}
	if len(notes) > 0 {
		result.SuspiciousReasons = notes
		result.Notes = SuspicionNote
	}

	result.Feedback = Suggestions(raw, probability, p.meta)
	result.FeedbackParagraph = FeedbackParagraph(v, probability, label == 1, result.Feedback, notes)
	return result
}

// explain computes standardized value x reference coefficient per feature and
// ranks the contributions by magnitude.
func (p *Predictor) explain(raw []float64) Explanation {
	coefs, mean, scale := referenceParams(p.meta)
	z := standardize(raw, mean, scale)

	reasons := make([]Reason, len(features.Names))
	for i, name := range features.Names {
		c := z[i] * coefs[i]
		effect := EffectNeutral
		switch {
		case c > 0:
			effect = EffectIncrease
		case c < 0:
			effect = EffectDecrease
		}
		reasons[i] = Reason{Feature: name, Effect: effect, Contribution: c}
	}

	importances := make(map[string]float64, len(features.Names))
	if len(p.meta.PermutationImportance) > 0 {
		for k, v := range p.meta.PermutationImportance {
			importances[k] = v
		}
	} else {
		for _, r := range reasons {
			importances[r.Feature] = math.Abs(r.Contribution)
		}
	}

	coefficients := make(map[string]float64, len(p.meta.Coefficients))
	for k, v := range p.meta.Coefficients {
		coefficients[k] = v
	}

	sort.SliceStable(reasons, func(a, b int) bool {
		return math.Abs(reasons[a].Contribution) > math.Abs(reasons[b].Contribution)
	})
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}

	return Explanation{TopReasons: reasons, FeatureImportances: importances, Coefficients: coefficients}
}

func (p *Predictor) observe(result *PredictionResult, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.MLPredictionsInc()
	p.metrics.MLPredictionScoresObserve(result.Probability)
	p.metrics.MLLatencyObserve(time.Since(start).Seconds())
	if result.SuspiciousInput {
		p.metrics.MLSuspiciousInputsInc()
	}
}

func (p *Predictor) countInvalid() {
	if p.metrics != nil {
		p.metrics.MLInvalidInputsInc()
	}
}

func (p *Predictor) countFailure() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
}
