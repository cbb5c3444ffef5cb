package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fold holds the row indices of one train/test split.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits row indices into k folds preserving the class ratio of
// y in every test fold. Rows are not shuffled: classes are sorted and dealt
// round-robin to the folds, then each class's rows are assigned to folds in
// their original order.
func StratifiedKFold(y []float64, k int) ([]Fold, error) {
	n := len(y)
	if k < 2 {
		return nil, fmt.Errorf("stratified k-fold needs at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", n, k)
	}

	// Encode classes by order of first appearance.
	classOf := make(map[float64]int)
	encoded := make([]int, n)
	for i, v := range y {
		c, ok := classOf[v]
		if !ok {
			c = len(classOf)
			classOf[v] = c
		}
		encoded[i] = c
	}
	nClasses := len(classOf)

	counts := make([]int, nClasses)
	for _, c := range encoded {
		counts[c]++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if k > maxCount {
		return nil, fmt.Errorf("cannot split into %d folds: largest class has %d members", k, maxCount)
	}

	order := make([]int, 0, n)
	for c, cnt := range counts {
		for j := 0; j < cnt; j++ {
			order = append(order, c)
		}
	}

	allocation := make([][]int, k)
	for i := range allocation {
		allocation[i] = make([]int, nClasses)
		for j := i; j < n; j += k {
			allocation[i][order[j]]++
		}
	}

	testFold := make([]int, n)
	for c := 0; c < nClasses; c++ {
		assign := make([]int, 0, counts[c])
		for fold := 0; fold < k; fold++ {
			for j := 0; j < allocation[fold][c]; j++ {
				assign = append(assign, fold)
			}
		}
		next := 0
		for i, e := range encoded {
			if e == c {
				testFold[i] = assign[next]
				next++
			}
		}
	}

	folds := make([]Fold, k)
	for i, f := range testFold {
		for j := range folds {
			if j == f {
				folds[j].Test = append(folds[j].Test, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}
	return folds, nil
}

// CrossValidate fits a fresh model per stratified fold and averages the test
// fold classification metrics. A row is predicted positive when its probability
// exceeds 0.5. The fold count is reduced when the data cannot support it.
func CrossValidate(ctx context.Context, fitter Fitter, x *mat.Dense, y []float64, k int) (ClassificationReport, error) {
	k = min(k, largestClass(y))

	folds, err := StratifiedKFold(y, k)
	if err != nil {
		return ClassificationReport{}, err
	}

	var sum ClassificationReport
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return ClassificationReport{}, err
		}

		model, err := fitter.Fit(selectRows(x, fold.Train), selectValues(y, fold.Train))
		if err != nil {
			return ClassificationReport{}, fmt.Errorf("fold %d: %w", i, err)
		}

		probs := model.PredictProba(selectRows(x, fold.Test))
		report := Score(selectValues(y, fold.Test), classify(probs))
		sum.Accuracy += report.Accuracy
		sum.Precision += report.Precision
		sum.Recall += report.Recall
		sum.F1 += report.F1
	}

	nf := float64(len(folds))
	return ClassificationReport{
		Accuracy:  sum.Accuracy / nf,
		Precision: sum.Precision / nf,
		Recall:    sum.Recall / nf,
		F1:        sum.F1 / nf,
	}, nil
}

// classCounts returns the number of rows labelled 0 and 1.
func classCounts(y []float64) (neg, pos int) {
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

func largestClass(y []float64) int {
	neg, pos := classCounts(y)
	return max(neg, pos)
}

func smallestClass(y []float64) int {
	neg, pos := classCounts(y)
	return min(neg, pos)
}
