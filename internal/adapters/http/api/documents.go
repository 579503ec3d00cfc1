package api

import (
	"context"
	"net/http"

	"github.com/okian/admitcast/internal/domain/model"
)

// DocumentDependencies defines the interface for rubric scoring.
type DocumentDependencies interface {
	ScoreDocument(ctx context.Context, req model.DocumentRequest) (model.DocumentEvaluation, error)
}

// DocumentHandler handles document scoring requests.
type DocumentHandler struct {
	deps DocumentDependencies
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(deps DocumentDependencies) *DocumentHandler {
	return &DocumentHandler{deps: deps}
}

// HandleScoreDocument handles POST /documents/score requests. A missing
// rubric is not an error: the placeholder evaluation is returned with 200.
func (h *DocumentHandler) HandleScoreDocument(w http.ResponseWriter, r *http.Request) {
	const op = "api.score_document"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.DocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := h.deps.ScoreDocument(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
