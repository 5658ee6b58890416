// Package gateway resolves the files of a scoring request, runs the scoring
// engine on them and converts every result, including failures, into a
// model.Outcome.
package gateway

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/okian/scorer/internal/adapters/source"
	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/internal/domain/scoring"
	"github.com/okian/scorer/internal/domain/table"
	"github.com/okian/scorer/pkg/logger"
	"github.com/okian/scorer/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine parses and evaluates resolved inputs.
type Engine interface {
	Parse(ref string, data []byte) (*table.Table, error)
	Evaluate(kind metric.Kind, pred, truth *table.Table) (scoring.Result, error)
}

// Gateway drives scoring requests through their state machine.
type Gateway struct {
	src         source.Reader
	engine      Engine
	maxInFlight int
	sem         *semaphore.Weighted
	log         logger.Logger
	hook        func(reqID string, from, to State)
}

// New creates a Gateway reading files from src and scoring with engine.
func New(src source.Reader, engine Engine, opts ...Option) *Gateway {
	g := &Gateway{
		src:         src,
		engine:      engine,
		maxInFlight: runtime.NumCPU(),
		log:         logger.Named("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.sem = semaphore.NewWeighted(int64(g.maxInFlight))
	return g
}

// MaxInFlight returns the concurrency cap.
func (g *Gateway) MaxInFlight() int { return g.maxInFlight }

type requestIDKey struct{}

// ContextWithRequestID attaches a request id used in logs.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// run tracks the state of one request.
type run struct {
	g     *Gateway
	ctx   context.Context
	id    string
	log   logger.Logger
	state State
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	r.log.Debug(r.ctx, "scoring transition", logger.String("from", prev.String()), logger.String("to", next.String()))
	if r.g.hook != nil {
		r.g.hook(r.id, prev, next)
	}
}

// Score handles one request. It never panics and never returns a partial
// score: the outcome is graded, errored, or pending when there is no ground
// truth to score against yet.
func (g *Gateway) Score(ctx context.Context, req model.Request) (out model.Outcome) {
	start := time.Now()
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = ContextWithRequestID(ctx, id)
	}
	r := &run{
		g:     g,
		ctx:   ctx,
		id:    id,
		log:   g.log.With(logger.String("request_id", id), logger.String("metric", req.Metric)),
		state: StatePending,
	}

	defer func() {
		if p := recover(); p != nil {
			out = model.Failed(apperr.New(apperr.KindUnknown, "gateway", "internal failure: %v", p))
		}
		g.finish(r, req, out, time.Since(start))
	}()

	kind, err := metric.Parse(req.Metric)
	if err != nil {
		return r.fail(err)
	}
	if req.GroundTruthRef == "" {
		return model.Pending()
	}
	if req.SubmissionRef == "" {
		return r.fail(apperr.New(apperr.KindResolution, "gateway", "submission_ref is required"))
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return r.fail(apperr.New(apperr.KindTimeout, "gateway", "waiting for a scoring slot: %v", err))
	}
	metrics.IncInFlight()
	defer func() {
		metrics.DecInFlight()
		g.sem.Release(1)
	}()

	r.to(StateResolving)
	subData, truthData, err := g.resolve(ctx, req)
	if err != nil {
		return r.fail(err)
	}

	r.to(StateParsing)
	stage := time.Now()
	pred, err := g.engine.Parse(req.SubmissionRef, subData)
	if err != nil {
		return r.fail(apperr.WithOp("submission", apperr.KindParse, err))
	}
	truth, err := g.engine.Parse(req.GroundTruthRef, truthData)
	if err != nil {
		return r.fail(apperr.WithOp("ground_truth", apperr.KindParse, err))
	}
	observeStage(metrics.StageParsing, stage)
	subData, truthData = nil, nil

	if err := ctx.Err(); err != nil {
		return r.fail(apperr.Wrap(apperr.KindTimeout, "gateway", err))
	}

	r.to(StateEvaluating)
	stage = time.Now()
	res, err := g.engine.Evaluate(kind, pred, truth)
	observeStage(metrics.StageEvaluating, stage)
	if err != nil {
		return r.fail(err)
	}
	if res.SubmissionOnly > 0 || res.GroundTruthOnly > 0 {
		metrics.RecordPartialJoin()
		r.log.Warn(ctx, "partial key overlap",
			logger.Int("rows", res.Rows),
			logger.Int("submission_only", res.SubmissionOnly),
			logger.Int("ground_truth_only", res.GroundTruthOnly))
	}
	if res.Duplicates > 0 {
		r.log.Warn(ctx, "duplicate ids, last value kept", logger.Int("duplicates", res.Duplicates))
	}

	r.to(StateGraded)
	return model.Graded(res.Score)
}

func (r *run) fail(err error) model.Outcome {
	r.to(StateErrored)
	return model.Failed(err)
}

// resolve reads both refs concurrently.
func (g *Gateway) resolve(ctx context.Context, req model.Request) (sub, truth []byte, err error) {
	stage := time.Now()
	defer observeStage(metrics.StageResolving, stage)

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		data, err := g.src.Read(ectx, req.SubmissionRef)
		if err != nil {
			return apperr.WithOp("submission", apperr.KindResolution, err)
		}
		recordFetched(req.SubmissionRef, len(data))
		sub = data
		return nil
	})
	eg.Go(func() error {
		data, err := g.src.Read(ectx, req.GroundTruthRef)
		if err != nil {
			return apperr.WithOp("ground_truth", apperr.KindResolution, err)
		}
		recordFetched(req.GroundTruthRef, len(data))
		truth = data
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return sub, truth, nil
}

func (g *Gateway) finish(r *run, req model.Request, out model.Outcome, elapsed time.Duration) {
	status := out.Status()
	metrics.RecordScoring(req.Metric, string(status), float64(elapsed.Milliseconds()))

	switch status {
	case model.StatusGraded:
		r.log.Info(r.ctx, "submission graded", logger.Float64("score", *out.Score), logger.Duration("elapsed", elapsed))
	case model.StatusError:
		if !r.state.Terminal() {
			r.to(StateErrored)
		}
		metrics.RecordScoringError(out.Kind.String())
		r.log.Warn(r.ctx, "submission errored",
			logger.String("error", out.Error),
			logger.Bool("retryable", out.Retryable()),
			logger.Duration("elapsed", elapsed))
	default:
		r.log.Info(r.ctx, "submission pending, no ground truth")
	}
}

func observeStage(stage string, since time.Time) {
	_ = metrics.RecordStageLatency(stage, float64(time.Since(since).Microseconds())/1000)
}

func recordFetched(ref string, n int) {
	kind := "local"
	if source.IsRemote(ref) {
		kind = "remote"
	}
	metrics.RecordFetchedBytes(kind, n)
}
