package service

import (
	"time"

	repository "github.com/okian/scorer/internal/adapters/repository"
	"github.com/okian/scorer/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxInFlight caps concurrent scoring calls.
func WithMaxInFlight(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithFetchTimeout bounds a single remote fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithJobTimeout bounds one asynchronous scoring job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithMaxFileBytes bounds each resolved file.
func WithMaxFileBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileBytes = n
		}
	}
}

// WithLocalRoot sets the directory local refs resolve under.
func WithLocalRoot(root string) Option {
	return func(s *Service) {
		s.localRoot = root
	}
}

// WithJoinPolicy selects inner or strict id alignment.
func WithJoinPolicy(policy string) Option {
	return func(s *Service) {
		s.joinPolicy = policy
	}
}

// WithScorePrecision sets the decimals kept on scores; negative keeps all.
func WithScorePrecision(n int) Option {
	return func(s *Service) {
		s.precision = n
	}
}

// WithDatabaseURL stores outcomes in PostgreSQL instead of memory.
func WithDatabaseURL(url string) Option {
	return func(s *Service) {
		s.databaseURL = url
	}
}

// WithRecorder injects a recorder, overriding WithDatabaseURL.
func WithRecorder(r repository.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
