package ml

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearModel is the plain parameter set of a fitted pipeline: per-feature
// standardization followed by a logistic decision function.
type LinearModel struct {
	Mean      []float64 `json:"mean"`
	Scale     []float64 `json:"scale"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Standardize maps a raw feature vector into the model's standardized space.
func (m *LinearModel) Standardize(x []float64) []float64 {
	return standardize(x, m.Mean, m.Scale)
}

// DecisionFunction returns the log-odds of the positive class for one raw vector.
func (m *LinearModel) DecisionFunction(x []float64) float64 {
	return m.Intercept + floats.Dot(m.Coef, m.Standardize(x))
}

// PredictProba returns the positive-class probability for every row of x.
func (m *LinearModel) PredictProba(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = sigmoid(m.DecisionFunction(x.RawRowView(i)))
	}
	return out
}

// decisionScores returns the decision function for every row of x.
func (m *LinearModel) decisionScores(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = m.DecisionFunction(x.RawRowView(i))
	}
	return out
}

// FitStandardizer computes per-column mean and population standard deviation.
// Constant columns get a scale of 1.
func FitStandardizer(x *mat.Dense) (mean, scale []float64, err error) {
	r, c := x.Dims()
	if r == 0 {
		return nil, nil, errors.New("cannot standardize an empty matrix")
	}

	mean = make([]float64, c)
	scale = make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)

		m, err := stats.Mean(col)
		if err != nil {
			return nil, nil, fmt.Errorf("column %d mean: %w", j, err)
		}
		sd, err := stats.StandardDeviationPopulation(col)
		if err != nil {
			return nil, nil, fmt.Errorf("column %d std: %w", j, err)
		}
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}

		mean[j] = m
		scale[j] = sd
	}
	return mean, scale, nil
}

func standardize(x, mean, scale []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		m, s := 0.0, 1.0
		if i < len(mean) {
			m = mean[i]
		}
		if i < len(scale) && scale[i] != 0 {
			s = scale[i]
		}
		out[i] = (v - m) / s
	}
	return out
}

// LogisticRegression is an L2-regularized binary logistic regression. The
// intercept is treated as an extra constant feature and is regularized with the
// weights, matching the liblinear formulation.
type LogisticRegression struct {
	C        float64
	Balanced bool
	MaxIter  int
	Tol      float64
}

// NewLogisticRegression returns the configuration used throughout training:
// C=1, balanced class weights.
func NewLogisticRegression() LogisticRegression {
	return LogisticRegression{C: 1.0, Balanced: true, MaxIter: 100, Tol: 1e-8}
}

// Pipeline standardizes features and fits a LogisticRegression on the result.
type Pipeline struct {
	LogisticRegression
}

// NewPipeline returns the default scaled logistic-regression pipeline.
func NewPipeline() Pipeline {
	return Pipeline{LogisticRegression: NewLogisticRegression()}
}

// Fit implements Fitter.
func (p Pipeline) Fit(x *mat.Dense, y []float64) (*LinearModel, error) {
	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", r, len(y))
	}

	mean, scale, err := FitStandardizer(x)
	if err != nil {
		return nil, err
	}

	z := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		z.SetRow(i, standardize(x.RawRowView(i), mean, scale))
	}

	coef, intercept, err := p.LogisticRegression.fit(z, y)
	if err != nil {
		return nil, err
	}

	return &LinearModel{Mean: mean, Scale: scale, Coef: coef, Intercept: intercept}, nil
}

// fit minimizes 0.5*|w|^2 + C*sum(s_i*log(1+exp(-t_i*w.z_i))) with Newton steps,
// where t_i is the label in {-1,+1}, s_i the class weight and z_i carries a
// trailing constant 1 for the intercept.
func (lr LogisticRegression) fit(z *mat.Dense, y []float64) ([]float64, float64, error) {
	n, d := z.Dims()
	if n == 0 {
		return nil, 0, errors.New("cannot fit logistic regression on zero samples")
	}

	maxIter := lr.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}
	c := lr.C
	if c <= 0 {
		c = 1
	}

	p := d + 1
	aug := mat.NewDense(n, p, nil)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			aug.Set(i, j, z.At(i, j))
		}
		aug.Set(i, d, 1)
		targets[i] = 2*y[i] - 1
	}
	weights := sampleWeights(y, lr.Balanced)

	objective := func(w []float64) float64 {
		f := 0.5 * floats.Dot(w, w)
		for i := 0; i < n; i++ {
			f += c * weights[i] * logLoss(targets[i]*floats.Dot(aug.RawRowView(i), w))
		}
		return f
	}

	w := make([]float64, p)
	grad := make([]float64, p)
	for iter := 0; iter < maxIter; iter++ {
		copy(grad, w)
		hess := mat.NewSymDense(p, nil)
		for j := 0; j < p; j++ {
			hess.SetSym(j, j, 1)
		}

		for i := 0; i < n; i++ {
			row := aug.RawRowView(i)
			s := sigmoid(targets[i] * floats.Dot(row, w))
			g := c * weights[i] * (s - 1) * targets[i]
			h := c * weights[i] * s * (1 - s)
			for j := 0; j < p; j++ {
				grad[j] += g * row[j]
				for k := 0; k <= j; k++ {
					hess.SetSym(j, k, hess.At(j, k)+h*row[j]*row[k])
				}
			}
		}

		if floats.Norm(grad, 2) < lr.Tol {
			break
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return nil, 0, errors.New("logistic regression hessian is not positive definite")
		}
		step := mat.NewVecDense(p, nil)
		if err := chol.SolveVecTo(step, mat.NewVecDense(p, grad)); err != nil {
			return nil, 0, fmt.Errorf("solve newton step: %w", err)
		}

		// Backtracking keeps every update a descent step.
		f0 := objective(w)
		slope := floats.Dot(grad, step.RawVector().Data)
		candidate := make([]float64, p)
		t := 1.0
		for {
			for j := range candidate {
				candidate[j] = w[j] - t*step.AtVec(j)
			}
			if objective(candidate) <= f0-1e-4*t*slope || t < 1e-10 {
				break
			}
			t /= 2
		}
		copy(w, candidate)
	}

	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, errors.New("logistic regression diverged")
		}
	}

	return append([]float64(nil), w[:d]...), w[d], nil
}

// sampleWeights returns n/(k*n_c) per sample when balanced, 1 otherwise.
func sampleWeights(y []float64, balanced bool) []float64 {
	out := make([]float64, len(y))
	if !balanced {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	counts := make(map[float64]int)
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	k := float64(len(counts))
	for i, v := range y {
		out[i] = n / (k * float64(counts[v]))
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logit is the inverse of sigmoid with p clamped to [1e-6, 1-1e-6].
func logit(p float64) float64 {
	const eps = 1e-6
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}

// logLoss returns log(1+exp(-m)) without overflow.
func logLoss(m float64) float64 {
	if m > 0 {
		return math.Log1p(math.Exp(-m))
	}
	return -m + math.Log1p(math.Exp(m))
}

// rowsOf builds a dense matrix from row vectors.
func rowsOf(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	x := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		x.SetRow(i, row)
	}
	return x
}

// selectRows copies the rows at idx into a new matrix.
func selectRows(x *mat.Dense, idx []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, x.RawRowView(r))
	}
	return out
}

func selectValues(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = v[r]
	}
	return out
}
