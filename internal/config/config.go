// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many submission ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxInFlight caps concurrent scoring calls across HTTP and workers.
	MaxInFlight int `koanf:"max_in_flight"`

	// FetchTimeoutMS bounds a single remote fetch.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// JobTimeoutMS bounds a whole asynchronous scoring job.
	JobTimeoutMS int `koanf:"job_timeout_ms"`

	// MaxFileBytes bounds the size of each resolved (and decompressed) file.
	MaxFileBytes int64 `koanf:"max_file_bytes"`

	// LocalRoot is the directory local refs are resolved under. Empty reads
	// paths as given.
	LocalRoot string `koanf:"local_root"`

	// JoinPolicy is inner or strict.
	JoinPolicy string `koanf:"join_policy"`

	// ScorePrecision is the number of decimals kept; -1 keeps full precision.
	ScorePrecision int `koanf:"score_precision"`

	// DatabaseURL selects the PostgreSQL recorder when set.
	DatabaseURL string `koanf:"database_url"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           1024,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		MaxInFlight:         runtime.NumCPU(),
		FetchTimeoutMS:      30_000,
		JobTimeoutMS:        120_000,
		MaxFileBytes:        100 << 20,
		LocalRoot:           "uploads",
		JoinPolicy:          "inner",
		ScorePrecision:      6,
		MaxLeaderboardLimit: 100,
	}
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// JobTimeout returns JobTimeoutMS as a duration.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.QueueSize < 1:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.DedupeSize < 0:
		return invalid("dedupe_size must not be negative, got %d", c.DedupeSize)
	case c.MaxInFlight < 1:
		return invalid("max_in_flight must be positive, got %d", c.MaxInFlight)
	case c.FetchTimeoutMS < 1:
		return invalid("fetch_timeout_ms must be positive, got %d", c.FetchTimeoutMS)
	case c.JobTimeoutMS < c.FetchTimeoutMS:
		return invalid("job_timeout_ms (%d) must be at least fetch_timeout_ms (%d)", c.JobTimeoutMS, c.FetchTimeoutMS)
	case c.MaxFileBytes < 1:
		return invalid("max_file_bytes must be positive, got %d", c.MaxFileBytes)
	case c.JoinPolicy != "inner" && c.JoinPolicy != "strict":
		return invalid("join_policy must be inner or strict, got %q", c.JoinPolicy)
	case c.ScorePrecision < -1 || c.ScorePrecision > 15:
		return invalid("score_precision must be between -1 and 15, got %d", c.ScorePrecision)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be positive, got %d", c.MaxLeaderboardLimit)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
