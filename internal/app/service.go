// Package service wires the scoring components together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/scorer/internal/adapters/mq/queue"
	"github.com/okian/scorer/internal/adapters/mq/worker"
	repository "github.com/okian/scorer/internal/adapters/repository"
	"github.com/okian/scorer/internal/adapters/source"
	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/dedupe"
	"github.com/okian/scorer/internal/domain/model"
	"github.com/okian/scorer/internal/domain/scoring"
	"github.com/okian/scorer/internal/gateway"
	"github.com/okian/scorer/pkg/logger"
	"github.com/okian/scorer/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a running service.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine   *scoring.Engine
	source   *source.Router
	gateway  *gateway.Gateway
	recorder repository.Recorder
	deduper  dedupe.Deduper
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	maxInFlight  int
	fetchTimeout time.Duration
	jobTimeout   time.Duration
	maxFileBytes int64
	localRoot    string
	joinPolicy   string
	precision    int
	databaseURL  string

	// State
	started      bool
	ownsRecorder bool
	cancel       context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    1024,
		dedupeSize:   50_000,
		maxInFlight:  runtime.NumCPU(),
		fetchTimeout: 30 * time.Second,
		jobTimeout:   2 * time.Minute,
		maxFileBytes: 100 << 20,
		localRoot:    "uploads",
		joinPolicy:   string(scoring.JoinInner),
		precision:    6,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the components and starts the worker pool. Workers outlive
// ctx; call Stop to end them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting scoring service...")

	policy, err := scoring.ParseJoinPolicy(s.joinPolicy)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	if s.recorder == nil {
		if s.databaseURL != "" {
			pg, err := repository.NewPostgresStore(ctx, s.databaseURL)
			if err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			s.recorder = pg
			s.logger.Info(ctx, "using postgres recorder")
		} else {
			s.recorder = repository.NewMemoryStore()
			s.logger.Info(ctx, "using in-memory recorder")
		}
		s.ownsRecorder = true
	}

	s.engine = scoring.NewEngine(
		scoring.WithJoinPolicy(policy),
		scoring.WithPrecision(s.precision),
		scoring.WithMaxBytes(s.maxFileBytes),
	)
	s.source = source.New(
		source.WithLocalRoot(s.localRoot),
		source.WithTimeout(s.fetchTimeout),
		source.WithMaxBytes(s.maxFileBytes),
	)
	s.gateway = gateway.New(s.source, s.engine,
		gateway.WithMaxInFlight(s.maxInFlight),
		gateway.WithLogger(s.logger.Named("gateway")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.gateway, s.recorder,
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithForgetter(s.deduper),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxInFlight", s.gateway.MaxInFlight()),
		logger.String("joinPolicy", string(policy)),
		logger.String("source", s.source.String()),
	)
	return nil
}

// Stop drains queued jobs and releases the recorder.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	s.cancel()

	if s.ownsRecorder {
		if closer, ok := s.recorder.(interface{ Close() }); ok {
			closer.Close()
		}
		s.recorder = nil
	}

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

// Score grades a request synchronously.
func (s *Service) Score(ctx context.Context, req model.Request) model.Outcome {
	s.mu.RLock()
	gw := s.gateway
	s.mu.RUnlock()
	if gw == nil {
		return model.Failed(apperr.Wrap(apperr.KindUnknown, "service", ErrNotStarted))
	}
	return gw.Score(ctx, req)
}

// SeenAndRecord atomically checks if a submission id was seen and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	if s.deduper == nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordJob("duplicate")
	}
	return seen
}

// Unrecord removes a submission id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if s.deduper == nil {
		return
	}
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue records the submission as pending and queues it for scoring. A
// rejected job leaves no record behind.
func (s *Service) Enqueue(ctx context.Context, j model.Job) error {
	s.mu.RLock()
	started, rec, q := s.started, s.recorder, s.queue
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	if err := rec.Record(ctx, model.Record(j, model.Pending(), time.Time{})); err != nil {
		metrics.RecordRecordError()
		return fmt.Errorf("record pending submission %s: %w", j.SubmissionID, err)
	}
	if err := q.Enqueue(ctx, j); err != nil {
		metrics.RecordJob("rejected")
		if derr := rec.Delete(ctx, j.SubmissionID); derr != nil {
			s.logger.Warn(ctx, "failed to drop pending submission",
				logger.String("submission_id", j.SubmissionID), logger.Error(derr))
		}
		return err
	}
	metrics.RecordJob("accepted")
	s.logger.Debug(ctx, "enqueued scoring job",
		logger.String("job_id", j.ID),
		logger.String("submission_id", j.SubmissionID),
		logger.String("competition_id", j.CompetitionID),
		logger.String("metric", j.Request.Metric),
	)
	return nil
}

// Submission returns the recorded state of a submission.
func (s *Service) Submission(ctx context.Context, id string) (model.Submission, error) {
	r, err := s.rec()
	if err != nil {
		return model.Submission{}, err
	}
	return r.Get(ctx, id)
}

// Leaderboard returns the best graded submission per user for a competition.
func (s *Service) Leaderboard(ctx context.Context, competitionID string, limit int) ([]model.Standing, error) {
	r, err := s.rec()
	if err != nil {
		return nil, err
	}
	return r.Leaderboard(ctx, competitionID, limit)
}

func (s *Service) rec() (repository.Recorder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recorder == nil {
		return nil, ErrNotStarted
	}
	return s.recorder, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxInFlight": s.maxInFlight,
		"joinPolicy":  s.joinPolicy,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		total := s.recorder.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalSubmissions"] = total
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		if total >= 0 {
			metrics.UpdateTotalSubmissions(total)
		}
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats["heapAllocBytes"] = m.Alloc
	stats["goroutines"] = runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	return stats
}
