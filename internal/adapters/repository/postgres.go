package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/scorer/internal/domain/model"
)

const defaultQueryTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    submission_id  TEXT PRIMARY KEY,
    competition_id TEXT NOT NULL DEFAULT '',
    user_id        TEXT NOT NULL DEFAULT '',
    metric         TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    score          DOUBLE PRECISION,
    error          TEXT NOT NULL DEFAULT '',
    submitted_at   TIMESTAMPTZ NOT NULL,
    scored_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS submissions_competition_idx ON submissions (competition_id, status);
`

// PostgresStore is a Recorder backed by a PostgreSQL table.
type PostgresStore struct {
	db           *pgxpool.Pool
	queryTimeout time.Duration
	setupSchema  bool
}

// NewPostgresStore connects to connStr, pings it and ensures the schema.
func NewPostgresStore(ctx context.Context, connStr string, opts ...Option) (*PostgresStore, error) {
	s := &PostgresStore{queryTimeout: defaultQueryTimeout, setupSchema: true}
	for _, opt := range opts {
		opt(s)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	s.db = pool

	if s.setupSchema {
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Record(ctx context.Context, sub model.Submission) error {
	if sub.SubmissionID == "" {
		return ErrMissingID
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cmd := `
        INSERT INTO submissions (submission_id, competition_id, user_id, metric, status, score, error, submitted_at, scored_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (submission_id) DO UPDATE SET
            competition_id = EXCLUDED.competition_id,
            user_id        = EXCLUDED.user_id,
            metric         = EXCLUDED.metric,
            status         = EXCLUDED.status,
            score          = EXCLUDED.score,
            error          = EXCLUDED.error,
            submitted_at   = EXCLUDED.submitted_at,
            scored_at      = EXCLUDED.scored_at;
    `
	var scoredAt *time.Time
	if !sub.ScoredAt.IsZero() {
		scoredAt = &sub.ScoredAt
	}
	_, err := s.db.Exec(ctx, cmd,
		sub.SubmissionID,
		sub.CompetitionID,
		sub.UserID,
		sub.Metric,
		string(sub.Status),
		sub.Score,
		sub.Error,
		sub.SubmittedAt,
		scoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission %s: %w", sub.SubmissionID, err)
	}
	return nil
}

const selectColumns = `submission_id, competition_id, user_id, metric, status, score, error, submitted_at, scored_at`

func (s *PostgresStore) Get(ctx context.Context, submissionID string) (model.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM submissions WHERE submission_id = $1`, submissionID)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("failed to get submission %s: %w", submissionID, err)
	}
	return sub, nil
}

func (s *PostgresStore) Delete(ctx context.Context, submissionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.Exec(ctx, `DELETE FROM submissions WHERE submission_id = $1`, submissionID); err != nil {
		return fmt.Errorf("failed to delete submission %s: %w", submissionID, err)
	}
	return nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, competitionID string, limit int) ([]model.Standing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM submissions WHERE competition_id = $1 AND status = $2`,
		competitionID, string(model.StatusGraded))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return BestPerUser(subs, limit)
}

// Count returns -1 when the database cannot be reached.
func (s *PostgresStore) Count(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM submissions`).Scan(&n); err != nil {
		return -1
	}
	return n
}

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var (
		sub      model.Submission
		status   string
		scoredAt *time.Time
	)
	err := row.Scan(
		&sub.SubmissionID,
		&sub.CompetitionID,
		&sub.UserID,
		&sub.Metric,
		&status,
		&sub.Score,
		&sub.Error,
		&sub.SubmittedAt,
		&scoredAt,
	)
	if err != nil {
		return model.Submission{}, err
	}
	sub.Status = model.Status(status)
	if scoredAt != nil {
		sub.ScoredAt = *scoredAt
	}
	return sub, nil
}
