package scoring

import (
	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/table"
)

// Alignment is the join of a prediction table with a label table.
type Alignment struct {
	// Pairs are sorted by key.
	Pairs           []metric.Pair
	SubmissionOnly  int
	GroundTruthOnly int
}

// Align joins pred and truth on their keys. Under JoinInner unmatched keys
// are dropped; under JoinStrict they are an AlignmentError. An empty join is
// always an AlignmentError.
func Align(pred, truth *table.Table, policy JoinPolicy) (Alignment, error) {
	const op = "align"
	if pred == nil || truth == nil {
		return Alignment{}, apperr.New(apperr.KindAlignment, op, "missing table")
	}

	var a Alignment
	for _, key := range truth.Keys() {
		y, _ := truth.Get(key)
		p, ok := pred.Get(key)
		if !ok {
			a.GroundTruthOnly++
			continue
		}
		a.Pairs = append(a.Pairs, metric.Pair{Key: key, Pred: p, Truth: y})
	}
	a.SubmissionOnly = pred.Len() - len(a.Pairs)

	if len(a.Pairs) == 0 {
		return Alignment{}, apperr.New(apperr.KindAlignment, op,
			"no overlapping rows (%d submission ids, %d ground truth ids); check the id column of the submission",
			pred.Len(), truth.Len())
	}
	if policy == JoinStrict && (a.SubmissionOnly > 0 || a.GroundTruthOnly > 0) {
		return Alignment{}, apperr.New(apperr.KindAlignment, op,
			"ids differ: %d missing from submission, %d not in ground truth",
			a.GroundTruthOnly, a.SubmissionOnly)
	}
	return a, nil
}
