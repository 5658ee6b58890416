package repository

import (
	"fmt"
	"sort"

	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/model"
)

// BestPerUser keeps each user's best graded submission and ranks them with
// the metric comparator. Equal scores rank the earlier submission first, then
// the smaller submission ID. All graded submissions must share one metric.
func BestPerUser(subs []model.Submission, limit int) ([]model.Standing, error) {
	var kind metric.Kind
	best := make(map[string]model.Submission)

	for _, s := range subs {
		if s.Status != model.StatusGraded || s.Score == nil {
			continue
		}
		k, err := metric.Parse(s.Metric)
		if err != nil {
			return nil, fmt.Errorf("submission %s: %w", s.SubmissionID, err)
		}
		if kind == "" {
			kind = k
		} else if k != kind {
			return nil, ErrMixedMetrics
		}

		cur, ok := best[s.UserID]
		if !ok || ahead(kind, s, cur) {
			best[s.UserID] = s
		}
	}

	ranked := make([]model.Submission, 0, len(best))
	for _, s := range best {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool { return ahead(kind, ranked[i], ranked[j]) })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]model.Standing, len(ranked))
	for i, s := range ranked {
		out[i] = model.Standing{
			Rank:         i + 1,
			UserID:       s.UserID,
			SubmissionID: s.SubmissionID,
			Score:        *s.Score,
			SubmittedAt:  s.SubmittedAt,
		}
	}
	return out, nil
}

func ahead(kind metric.Kind, a, b model.Submission) bool {
	if kind.Better(*a.Score, *b.Score) {
		return true
	}
	if kind.Better(*b.Score, *a.Score) {
		return false
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.SubmissionID < b.SubmissionID
}
