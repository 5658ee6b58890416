package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/scorer/internal/adapters/mq/queue"
	"github.com/okian/scorer/internal/adapters/repository"
	"github.com/okian/scorer/internal/domain/metric"
	"github.com/okian/scorer/internal/domain/model"
)

// SubmissionsHandler handles asynchronous submission scoring.
type SubmissionsHandler struct {
	deps Dependencies
	now  func() time.Time
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps Dependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps, now: time.Now}
}

// submissionRequest mirrors the OpenAPI schema for POST /submissions.
type submissionRequest struct {
	SubmissionID   string `json:"submission_id"`
	CompetitionID  string `json:"competition_id"`
	UserID         string `json:"user_id"`
	SubmissionRef  string `json:"submission_ref"`
	GroundTruthRef string `json:"ground_truth_ref"`
	Metric         string `json:"metric"`
	SubmittedAt    string `json:"submitted_at,omitempty"`
}

func (s submissionRequest) validate() error {
	switch {
	case strings.TrimSpace(s.SubmissionID) == "":
		return errors.New("missing submission_id")
	case strings.TrimSpace(s.CompetitionID) == "":
		return errors.New("missing competition_id")
	case strings.TrimSpace(s.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(s.SubmissionRef) == "":
		return errors.New("missing submission_ref")
	}
	if _, err := metric.Parse(s.Metric); err != nil {
		return err
	}
	if s.SubmittedAt != "" {
		if _, err := time.Parse(time.RFC3339, s.SubmittedAt); err != nil {
			return errors.New("invalid submitted_at; must be RFC3339")
		}
	}
	return nil
}

func (s submissionRequest) job(now time.Time) model.Job {
	at := now.UTC()
	if s.SubmittedAt != "" {
		at, _ = time.Parse(time.RFC3339, s.SubmittedAt)
	}
	return model.Job{
		ID:            uuid.NewString(),
		SubmissionID:  s.SubmissionID,
		CompetitionID: s.CompetitionID,
		UserID:        s.UserID,
		Request: model.Request{
			SubmissionRef:  s.SubmissionRef,
			GroundTruthRef: s.GroundTruthRef,
			Metric:         s.Metric,
		},
		SubmittedAt: at,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostSubmission handles POST /submissions requests.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submissionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), req.SubmissionID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	j := req.job(h.now())
	if err := h.deps.Enqueue(r.Context(), j); err != nil {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), req.SubmissionID)
		switch {
		case errors.Is(err, queue.ErrFull), errors.Is(err, ErrBackpressure):
			writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, err))
		case errors.Is(err, queue.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", JobID: j.ID})
}

// HandleGetSubmission handles GET /submissions/{submission_id} requests.
func (h *SubmissionsHandler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_submission"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/submissions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}
	sub, err := h.deps.Submission(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, nil))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
