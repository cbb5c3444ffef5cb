package ml

import (
	"math"
	"sort"
)

// ClassificationReport holds binary classification metrics for the positive
// class. Undefined ratios (zero denominators) are reported as 0.
type ClassificationReport struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Score compares true labels against predicted labels.
func Score(yTrue, yPred []float64) ClassificationReport {
	var tp, fp, fn, correct float64
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1:
			fp++
		case yTrue[i] == 1:
			fn++
		}
	}

	var r ClassificationReport
	if n := float64(len(yTrue)); n > 0 {
		r.Accuracy = correct / n
	}
	if tp+fp > 0 {
		r.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		r.Recall = tp / (tp + fn)
	}
	if 2*tp+fp+fn > 0 {
		r.F1 = 2 * tp / (2*tp + fp + fn)
	}
	return r
}

// ROC is a receiver operating characteristic curve. Thresholds are decreasing
// and start with +Inf so the curve begins at (0, 0).
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ROCCurve computes the ROC curve of scores against binary labels, keeping
// only the points where the curve changes direction.
func ROCCurve(yTrue, scores []float64) ROC {
	n := len(scores)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var tps, fps, thresholds []float64
	var tp float64
	for pos, i := range idx {
		tp += yTrue[i]
		if pos < n-1 && scores[idx[pos+1]] == scores[i] {
			continue
		}
		tps = append(tps, tp)
		fps = append(fps, float64(pos+1)-tp)
		thresholds = append(thresholds, scores[i])
	}

	if len(fps) > 2 {
		keep := []int{0}
		for i := 1; i < len(fps)-1; i++ {
			if fps[i-1]-2*fps[i]+fps[i+1] != 0 || tps[i-1]-2*tps[i]+tps[i+1] != 0 {
				keep = append(keep, i)
			}
		}
		keep = append(keep, len(fps)-1)
		tps = pick(tps, keep)
		fps = pick(fps, keep)
		thresholds = pick(thresholds, keep)
	}

	tps = append([]float64{0}, tps...)
	fps = append([]float64{0}, fps...)
	thresholds = append([]float64{math.Inf(1)}, thresholds...)

	roc := ROC{
		FPR:        make([]float64, len(fps)),
		TPR:        make([]float64, len(tps)),
		Thresholds: thresholds,
	}
	lastF, lastT := fps[len(fps)-1], tps[len(tps)-1]
	for i := range fps {
		if lastF > 0 {
			roc.FPR[i] = fps[i] / lastF
		}
		if lastT > 0 {
			roc.TPR[i] = tps[i] / lastT
		}
	}
	return roc
}

// ROCAUC is the area under the ROC curve by the trapezoidal rule. It returns
// NaN when only one class is present.
func ROCAUC(yTrue, scores []float64) float64 {
	neg, pos := classCounts(yTrue)
	if neg == 0 || pos == 0 {
		return math.NaN()
	}

	roc := ROCCurve(yTrue, scores)
	var area float64
	for i := 1; i < len(roc.FPR); i++ {
		area += (roc.FPR[i] - roc.FPR[i-1]) * (roc.TPR[i] + roc.TPR[i-1]) / 2
	}
	return area
}

// BestF1Threshold scans the ROC thresholds of scores and returns the one with the
// highest F1 when predicting positive for score >= threshold. Ties keep the
// higher threshold. The result is never below floor.
func BestF1Threshold(yTrue, scores []float64, floor float64) float64 {
	best, bestF1 := floor, -1.0
	for _, th := range ROCCurve(yTrue, scores).Thresholds {
		if math.IsInf(th, 0) || math.IsNaN(th) {
			continue
		}
		if f1 := Score(yTrue, predictLabels(scores, th)).F1; f1 > bestF1 {
			best, bestF1 = th, f1
		}
	}
	return math.Max(best, floor)
}

func predictLabels(probs []float64, threshold float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// classify labels a row positive when its probability exceeds 0.5.
func classify(probs []float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}
