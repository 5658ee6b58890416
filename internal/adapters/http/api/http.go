// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/scorer/internal/domain/dedupe"
	"github.com/okian/scorer/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Score grades one request synchronously.
	Score(ctx context.Context, req model.Request) model.Outcome

	// Enqueue pushes a job for async scoring. Returns ErrBackpressure
	// (or a wrapped variant) when the queue cannot take it.
	Enqueue(ctx context.Context, j model.Job) error

	// Read operations expose recorded submissions and standings.
	Submission(ctx context.Context, id string) (model.Submission, error)
	Leaderboard(ctx context.Context, competitionID string, limit int) ([]model.Standing, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoreHandler       *ScoreHandler
	submissionsHandler *SubmissionsHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// leaderboard page size.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoreHandler:       NewScoreHandler(deps),
		submissionsHandler: NewSubmissionsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(RequestIDMiddleware(s.healthHandler.HandleHealth), "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(RequestIDMiddleware(s.statsHandler.HandleStats), "stats"))
	mux.HandleFunc("/score", MetricsMiddleware(RequestIDMiddleware(s.scoreHandler.HandlePostScore), "score"))
	mux.HandleFunc("/submissions", MetricsMiddleware(RequestIDMiddleware(s.submissionsHandler.HandlePostSubmission), "submissions"))
	mux.HandleFunc("/submissions/", MetricsMiddleware(RequestIDMiddleware(s.submissionsHandler.HandleGetSubmission), "submission"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(RequestIDMiddleware(s.leaderboardHandler.HandleGetLeaderboard), "leaderboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
