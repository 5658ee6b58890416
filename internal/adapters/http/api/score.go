package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/scorer/internal/apperr"
	"github.com/okian/scorer/internal/domain/model"
)

// maxBodyBytes bounds JSON request bodies. Files travel by reference.
const maxBodyBytes = 1 << 20

// ScoreHandler handles synchronous scoring requests.
type ScoreHandler struct {
	deps Dependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

type scoreResponse struct {
	Status model.Status `json:"status"`
	model.Outcome
}

// HandlePostScore handles POST /score requests. Scoring failures are part of
// the outcome and come back with 200; only an unreadable body is rejected.
func (h *ScoreHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.Request
	if err := decodeBody(w, r, &req); err != nil {
		out := model.Failed(apperr.New(apperr.KindParse, "request", "invalid body: %v", err))
		writeJSON(w, http.StatusUnprocessableEntity, scoreResponse{Status: out.Status(), Outcome: out})
		return
	}
	out := h.deps.Score(r.Context(), req)
	writeJSON(w, http.StatusOK, scoreResponse{Status: out.Status(), Outcome: out})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
