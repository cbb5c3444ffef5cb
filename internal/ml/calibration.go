package ml

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sigmoid maps a decision score f to P(y=1) = 1/(1+exp(A*f+B)).
type Sigmoid struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Probability applies the sigmoid to one decision score.
func (s Sigmoid) Probability(f float64) float64 {
	return sigmoid(-(s.A*f + s.B))
}

// FitSigmoid fits Platt scaling parameters on decision scores and binary labels
// using Newton's method with backtracking and prior-corrected targets.
func FitSigmoid(scores, y []float64) (Sigmoid, error) {
	if len(scores) != len(y) {
		return Sigmoid{}, fmt.Errorf("scores (%d) and labels (%d) differ", len(scores), len(y))
	}
	if len(scores) == 0 {
		return Sigmoid{}, errors.New("cannot fit sigmoid on zero samples")
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)

	prior0, prior1 := classCounts(y)
	hi := (float64(prior1) + 1) / (float64(prior1) + 2)
	lo := 1 / (float64(prior0) + 2)
	t := make([]float64, len(y))
	for i, v := range y {
		if v == 1 {
			t[i] = hi
		} else {
			t[i] = lo
		}
	}

	objective := func(a, b float64) float64 {
		var f float64
		for i, s := range scores {
			z := s*a + b
			if z >= 0 {
				f += t[i]*z + math.Log1p(math.Exp(-z))
			} else {
				f += (t[i]-1)*z + math.Log1p(math.Exp(z))
			}
		}
		return f
	}

	a := 0.0
	b := math.Log((float64(prior0) + 1) / (float64(prior1) + 1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22 := sigma, sigma
		var h21, g1, g2 float64
		for i, s := range scores {
			p := sigmoid(-(s*a + b))
			q := 1 - p
			d2 := p * q
			h11 += s * s * d2
			h22 += d2
			h21 += s * d2
			d1 := t[i] - p
			g1 += s * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		da := -(h22*g1 - h21*g2) / det
		db := -(-h21*g1 + h11*g2) / det
		gd := g1*da + g2*db

		step := 1.0
		for step >= minStep {
			na, nb := a+step*da, b+step*db
			if nf := objective(na, nb); nf < fval+1e-4*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}

	if math.IsNaN(a) || math.IsNaN(b) {
		return Sigmoid{}, errors.New("sigmoid calibration diverged")
	}
	return Sigmoid{A: a, B: b}, nil
}

// CalibratedMember pairs a linear model with the sigmoid fitted on its
// out-of-fold decision scores.
type CalibratedMember struct {
	Model   LinearModel `json:"model"`
	Sigmoid Sigmoid     `json:"sigmoid"`
}

// Probability returns the calibrated positive-class probability of one raw vector.
func (m CalibratedMember) Probability(x []float64) float64 {
	return m.Sigmoid.Probability(m.Model.DecisionFunction(x))
}

// CalibratedModel averages the calibrated probabilities of its members.
type CalibratedModel struct {
	Members []CalibratedMember `json:"members"`
}

// Probability returns the mean calibrated probability of one raw vector.
func (c *CalibratedModel) Probability(x []float64) float64 {
	if len(c.Members) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, m := range c.Members {
		sum += m.Probability(x)
	}
	return sum / float64(len(c.Members))
}

// PredictProba implements Classifier.
func (c *CalibratedModel) PredictProba(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = c.Probability(x.RawRowView(i))
	}
	return out
}

// FitCalibrated fits one member per stratified fold: the model is trained on the
// fold's training rows and its sigmoid on the held-out rows. The fold count is
// capped by the minority class size. With fewer than two minority rows a single
// member is fitted on in-sample scores of a full-data model.
func FitCalibrated(ctx context.Context, fitter Fitter, x *mat.Dense, y []float64, folds int) (*CalibratedModel, error) {
	k := min(folds, smallestClass(y))

	if k < 2 {
		model, err := fitter.Fit(x, y)
		if err != nil {
			return nil, err
		}
		sig, err := FitSigmoid(model.decisionScores(x), y)
		if err != nil {
			return nil, err
		}
		return &CalibratedModel{Members: []CalibratedMember{{Model: *model, Sigmoid: sig}}}, nil
	}

	splits, err := StratifiedKFold(y, k)
	if err != nil {
		return nil, err
	}

	out := &CalibratedModel{Members: make([]CalibratedMember, 0, k)}
	for i, fold := range splits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model, err := fitter.Fit(selectRows(x, fold.Train), selectValues(y, fold.Train))
		if err != nil {
			return nil, fmt.Errorf("calibration fold %d: %w", i, err)
		}
		sig, err := FitSigmoid(model.decisionScores(selectRows(x, fold.Test)), selectValues(y, fold.Test))
		if err != nil {
			return nil, fmt.Errorf("calibration fold %d: %w", i, err)
		}
		out.Members = append(out.Members, CalibratedMember{Model: *model, Sigmoid: sig})
	}
	return out, nil
}
