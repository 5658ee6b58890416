package batch

import (
	"context"
	"time"

	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Scorer turns a request into an outcome.
type Scorer interface {
	Score(ctx context.Context, req model.Request) model.Outcome
}

// Result is the outcome of one manifest entry.
type Result struct {
	Name     string        `json:"name"`
	Request  model.Request `json:"request"`
	Status   model.Status  `json:"status"`
	Outcome  model.Outcome `json:"outcome"`
	Duration time.Duration `json:"duration_ns"`
}

// Stats summarizes a run.
type Stats struct {
	Graded   int
	Errored  int
	Pending  int
	Duration time.Duration
}

// Run scores every entry with at most workers in flight. Results keep the
// order of entries. A cancelled ctx surfaces as Timeout outcomes, not as an
// error.
func Run(ctx context.Context, scorer Scorer, entries []Entry, workers int) ([]Result, Stats) {
	start := time.Now()
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(entries))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, e := range entries {
		eg.Go(func() error {
			t := time.Now()
			out := scorer.Score(ctx, e.Request)
			results[i] = Result{
				Name:     e.Name,
				Request:  e.Request,
				Status:   out.Status(),
				Outcome:  out,
				Duration: time.Since(t),
			}
			return nil
		})
	}
	_ = eg.Wait()

	stats := Stats{Duration: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case model.StatusGraded:
			stats.Graded++
		case model.StatusError:
			stats.Errored++
		default:
			stats.Pending++
		}
	}

	logger.Get().Info(ctx, "batch finished",
		logger.Int("jobs", len(entries)),
		logger.Int("workers", workers),
		logger.Int("graded", stats.Graded),
		logger.Int("errored", stats.Errored),
		logger.Int("pending", stats.Pending),
		logger.Duration("duration", stats.Duration))
	return results, stats
}
