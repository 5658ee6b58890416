package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/pkg/logger"
	"github.com/okian/scorer/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultJobTimeout   = 2 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Scorer turns a request into an outcome. It must not panic.
type Scorer interface {
	Score(ctx context.Context, req model.Request) model.Outcome
}

// Recorder stores the outcome of a job.
type Recorder interface {
	Record(ctx context.Context, s model.Submission) error
}

// Forgetter drops a submission id from the idempotency filter.
type Forgetter interface {
	Unrecord(ctx context.Context, id string)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker processes jobs until its queue is drained.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	scorer     Scorer
	recorder   Recorder
	forgetter  Forgetter
	name       string
	jobTimeout time.Duration
	active     *atomic.Int32
	now        func() time.Time

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		scorer:     scorer,
		recorder:   recorder,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		active:     &atomic.Int32{},
		now:        time.Now,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.active.Add(-1))) }()

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	out := w.scorer.Score(jctx, job.Request)
	rec := model.Record(job, out, w.now())

	// Recording uses the parent context so a job that timed out is still
	// stored as errored.
	if err := w.recorder.Record(ctx, rec); err != nil {
		metrics.RecordRecordError()
		metrics.RecordWorkerError()
		if w.forgetter != nil {
			w.forgetter.Unrecord(ctx, job.SubmissionID)
		}
		return fmt.Errorf("record submission %s: %w", job.SubmissionID, err)
	}
	metrics.RecordSubmissionRecorded()

	if out.Retryable() && w.forgetter != nil {
		w.forgetter.Unrecord(ctx, job.SubmissionID)
	}
	w.logger.Debug(ctx, "job done",
		logger.String("job_id", job.ID),
		logger.String("submission_id", job.SubmissionID),
		logger.String("status", string(rec.Status)))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool; opts apply to every worker.
func NewPool(workerCount int, q Queue, scorer Scorer, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	active := &atomic.Int32{}
	for i := 0; i < workerCount; i++ {
		wo := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, scorer, recorder, wo...)
		w.active = active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets the workers drain it. Workers still
// busy when ctx (bounded by poolShutdownTimeout) ends are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			close(w.shutdown)
			timedOut++
		}
	}
	if timedOut > 0 {
		p.logger.Warn(ctx, "workers did not drain before shutdown deadline", logger.Int("workers", timedOut))
		return fmt.Errorf("%d workers still busy: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
