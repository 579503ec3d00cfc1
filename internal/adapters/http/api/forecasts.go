package api

import (
	"context"
	"net/http"

	"github.com/okian/admitcast/internal/domain/model"
)

// ForecastDependencies defines the interface for forecast operations.
type ForecastDependencies interface {
	Forecast(ctx context.Context, req model.ForecastRequest) (model.ForecastResult, error)
}

// ForecastHandler handles forecast requests.
type ForecastHandler struct {
	deps ForecastDependencies
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(deps ForecastDependencies) *ForecastHandler {
	return &ForecastHandler{deps: deps}
}

// HandlePostForecast handles POST /forecasts requests.
func (h *ForecastHandler) HandlePostForecast(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_forecast"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.ForecastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Forecast(r.Context(), req)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
