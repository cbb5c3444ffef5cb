package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PermutationConfig configures permutation importance.
type PermutationConfig struct {
	Repeats int
	Seed    int64
}

// PermutationImportance measures, for every column of x, the mean drop in
// accuracy when that column's values are shuffled across rows. Shuffles come
// from a single seeded source so results are reproducible.
func PermutationImportance(model Classifier, x *mat.Dense, y []float64, config PermutationConfig) ([]float64, error) {
	if model == nil {
		return nil, errors.New("permutation importance needs a model")
	}
	if config.Repeats <= 0 {
		return nil, fmt.Errorf("permutation repeats must be positive, got %d", config.Repeats)
	}

	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", r, len(y))
	}

	baseline := Score(y, classify(model.PredictProba(x))).Accuracy
	rng := rand.New(rand.NewSource(config.Seed))

	importances := make([]float64, c)
	permuted := mat.DenseCopyOf(x)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		var drop float64
		for rep := 0; rep < config.Repeats; rep++ {
			for i, p := range rng.Perm(r) {
				permuted.Set(i, j, col[p])
			}
			drop += baseline - Score(y, classify(model.PredictProba(permuted))).Accuracy
		}
		permuted.SetCol(j, col)
		importances[j] = drop / float64(config.Repeats)
	}

	for _, v := range importances {
		if math.IsNaN(v) {
			return nil, errors.New("permutation importance produced NaN")
		}
	}
	return importances, nil
}

// NormalizeImportances scales importances so their absolute values sum to 1.
// An all-zero vector is returned unchanged.
func NormalizeImportances(importances []float64) []float64 {
	out := append([]float64(nil), importances...)
	total := floats.Norm(out, 1)
	if total == 0 {
		return out
	}
	floats.Scale(1/total, out)
	return out
}

// featureImportances computes normalized permutation importance keyed by
// feature name. Failures are logged and yield zero importance.
func featureImportances(model Classifier, x *mat.Dense, y []float64, names []string, config PermutationConfig) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = 0
	}

	raw, err := PermutationImportance(model, x, y, config)
	if err != nil {
		log.Warn().Err(err).Msg("Permutation importance failed")
		return out
	}

	for i, v := range NormalizeImportances(raw) {
		if i < len(names) {
			out[names[i]] = v
		}
	}
	return out
}
