// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/scorer/internal/apperr"
)

// Request asks for one submission to be scored against a ground truth.
// Fields mirror the OpenAPI schema for /score.
type Request struct {
	SubmissionRef  string `json:"submission_ref" yaml:"submission_ref"`
	GroundTruthRef string `json:"ground_truth_ref" yaml:"ground_truth_ref"`
	Metric         string `json:"metric" yaml:"metric"`
}

// Status is the state recorded on a submission.
type Status string

const (
	StatusGraded  Status = "graded"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// Outcome is the result of one scoring call. At most one of Score and Error
// is set; neither is set only for a pending outcome.
type Outcome struct {
	Score *float64 `json:"score,omitempty"`
	Error string   `json:"error,omitempty"`

	Kind apperr.Kind `json:"-"`
}

// Graded builds a successful outcome.
func Graded(score float64) Outcome {
	return Outcome{Score: &score}
}

// Failed builds an error outcome carrying the classified error text.
func Failed(err error) Outcome {
	kind := apperr.KindOf(err)
	return Outcome{Error: err.Error(), Kind: kind}
}

// Pending builds an outcome for a submission that cannot be graded yet.
func Pending() Outcome { return Outcome{} }

// Status maps the outcome to the submission status.
func (o Outcome) Status() Status {
	switch {
	case o.Error != "":
		return StatusError
	case o.Score != nil:
		return StatusGraded
	default:
		return StatusPending
	}
}

// Retryable reports whether a failed outcome may succeed on resubmission.
func (o Outcome) Retryable() bool {
	return o.Error != "" && o.Kind.Retryable()
}

// Job is a queued request for an identified submission.
type Job struct {
	ID            string    // job id assigned at enqueue time
	SubmissionID  string    // unique id for idempotency
	CompetitionID string    // leaderboard the submission belongs to
	UserID        string    // submitter
	Request       Request   // what to score
	SubmittedAt   time.Time // submission timestamp
}

// Submission is the persisted view of a scored submission.
type Submission struct {
	SubmissionID  string    `json:"submission_id"`
	CompetitionID string    `json:"competition_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Metric        string    `json:"metric,omitempty"`
	Status        Status    `json:"status"`
	Score         *float64  `json:"score,omitempty"`
	Error         string    `json:"error,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	ScoredAt      time.Time `json:"scored_at,omitzero"`
}

// Record builds the stored submission for a job and its outcome.
func Record(j Job, o Outcome, scoredAt time.Time) Submission {
	s := Submission{
		SubmissionID:  j.SubmissionID,
		CompetitionID: j.CompetitionID,
		UserID:        j.UserID,
		Metric:        j.Request.Metric,
		Status:        o.Status(),
		Error:         o.Error,
		SubmittedAt:   j.SubmittedAt,
	}
	if o.Score != nil {
		v := *o.Score
		s.Score = &v
	}
	if s.Status != StatusPending {
		s.ScoredAt = scoredAt
	}
	return s
}

// Standing is one leaderboard row: a user's best graded submission.
type Standing struct {
	Rank         int       `json:"rank"`
	UserID       string    `json:"user_id"`
	SubmissionID string    `json:"submission_id"`
	Score        float64   `json:"score"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
