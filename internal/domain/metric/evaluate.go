package metric

import (
	"math"
	"sort"

	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/table"
)

// Epsilon clips probabilities before taking logs.
const Epsilon = 1e-15

// Pair is one aligned row.
type Pair struct {
	Key   string
	Pred  table.Value
	Truth table.Value
}

// Evaluate computes kind over pairs. Pairs should be in a stable order (the
// aligner sorts by key) so float accumulation is reproducible.
func Evaluate(kind Kind, pairs []Pair) (float64, error) {
	op := "metric." + string(kind)
	if len(pairs) == 0 {
		return 0, apperr.New(apperr.KindAlignment, op, "no overlapping rows")
	}

	switch kind {
	case Accuracy:
		return accuracy(pairs), nil
	case F1:
		return macroF1(pairs), nil
	case ROCAUC:
		return rocAUC(op, pairs)
	case CrossEntropy:
		return crossEntropy(op, pairs)
	case MAE, MSE, RMSE:
		p, y, err := numericPairs(op, pairs)
		if err != nil {
			return 0, err
		}
		switch kind {
		case MAE:
			return meanAbsError(p, y), nil
		case MSE:
			return meanSquaredError(p, y), nil
		default:
			return math.Sqrt(meanSquaredError(p, y)), nil
		}
	default:
		return 0, apperr.New(apperr.KindMetric, "metric", "unknown metric %q", kind)
	}
}

func accuracy(pairs []Pair) float64 {
	hits := 0
	for _, p := range pairs {
		if p.Pred.Class() == p.Truth.Class() {
			hits++
		}
	}
	return float64(hits) / float64(len(pairs))
}

// macroF1 averages per-class F1 over the classes present in the labels.
// Classes that only ever appear as predictions are left out of the average;
// their rows still count as misses for the true class.
func macroF1(pairs []Pair) float64 {
	tp := map[string]int{}
	fp := map[string]int{}
	fn := map[string]int{}
	labels := map[string]struct{}{}

	for _, p := range pairs {
		pred, truth := p.Pred.Class(), p.Truth.Class()
		labels[truth] = struct{}{}
		if pred == truth {
			tp[truth]++
			continue
		}
		fp[pred]++
		fn[truth]++
	}

	classes := make([]string, 0, len(labels))
	for c := range labels {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	sum := 0.0
	for _, c := range classes {
		denom := 2*tp[c] + fp[c] + fn[c]
		if denom > 0 {
			sum += float64(2*tp[c]) / float64(denom)
		}
	}
	return sum / float64(len(classes))
}

// binaryLabels returns 0/1 labels or an error for non-binary truth values.
func binaryLabels(op string, pairs []Pair) ([]float64, error) {
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		f, ok := p.Truth.Float()
		if !ok {
			return nil, apperr.New(apperr.KindTypeMismatch, op, "label %q for id %s is not numeric", p.Truth.String(), p.Key)
		}
		if f != 0 && f != 1 {
			return nil, apperr.New(apperr.KindMetric, op, "label %v for id %s is not binary (0 or 1)", f, p.Key)
		}
		y[i] = f
	}
	return y, nil
}

func scores(op string, pairs []Pair) ([]float64, error) {
	s := make([]float64, len(pairs))
	for i, p := range pairs {
		f, ok := p.Pred.Float()
		if !ok {
			return nil, apperr.New(apperr.KindTypeMismatch, op, "prediction %q for id %s is not numeric", p.Pred.String(), p.Key)
		}
		s[i] = f
	}
	return s, nil
}

// rocAUC uses the Mann-Whitney U statistic with average ranks for ties.
func rocAUC(op string, pairs []Pair) (float64, error) {
	y, err := binaryLabels(op, pairs)
	if err != nil {
		return 0, err
	}

	var nPos, nNeg int
	for _, v := range y {
		if v == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, apperr.New(apperr.KindMetric, op, "undefined: single class")
	}

	s, err := scores(op, pairs)
	if err != nil {
		return 0, err
	}

	idx := make([]int, len(s))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s[idx[a]] < s[idx[b]] })

	rankSumPos := 0.0
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && s[idx[j+1]] == s[idx[i]] {
			j++
		}
		// Ranks are 1-based; a tie group i..j shares the mean rank.
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if y[idx[k]] == 1 {
				rankSumPos += avg
			}
		}
		i = j + 1
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

func crossEntropy(op string, pairs []Pair) (float64, error) {
	y, err := binaryLabels(op, pairs)
	if err != nil {
		return 0, err
	}
	p, err := scores(op, pairs)
	if err != nil {
		return 0, err
	}

	sum := 0.0
	for i := range p {
		q := math.Min(math.Max(p[i], Epsilon), 1-Epsilon)
		sum += -(y[i]*math.Log(q) + (1-y[i])*math.Log(1-q))
	}
	return sum / float64(len(p)), nil
}

func numericPairs(op string, pairs []Pair) (pred, truth []float64, err error) {
	pred = make([]float64, len(pairs))
	truth = make([]float64, len(pairs))
	for i, pr := range pairs {
		p, ok := pr.Pred.Float()
		if !ok {
			return nil, nil, apperr.New(apperr.KindTypeMismatch, op, "prediction %q for id %s is not numeric", pr.Pred.String(), pr.Key)
		}
		y, ok := pr.Truth.Float()
		if !ok {
			return nil, nil, apperr.New(apperr.KindTypeMismatch, op, "label %q for id %s is not numeric", pr.Truth.String(), pr.Key)
		}
		pred[i], truth[i] = p, y
	}
	return pred, truth, nil
}

func meanAbsError(pred, truth []float64) float64 {
	s := 0.0
	for i := range truth {
		s += math.Abs(pred[i] - truth[i])
	}
	return s / float64(len(truth))
}

func meanSquaredError(pred, truth []float64) float64 {
	s := 0.0
	for i := range truth {
		d := pred[i] - truth[i]
		s += d * d
	}
	return s / float64(len(truth))
}
