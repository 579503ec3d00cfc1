// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/admitcast/internal/domain/institution"
	"github.com/okian/admitcast/internal/domain/model"
)

// maxBodyBytes bounds request bodies; documents are plain text.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Forecast(ctx context.Context, req model.ForecastRequest) (model.ForecastResult, error)
	ScoreDocument(ctx context.Context, req model.DocumentRequest) (model.DocumentEvaluation, error)
	Institutions(ctx context.Context, query string) []institution.Institution
	Institution(ctx context.Context, id int) (institution.Institution, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	forecastHandler    *ForecastHandler
	documentHandler    *DocumentHandler
	institutionHandler *InstitutionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		forecastHandler:    NewForecastHandler(deps),
		documentHandler:    NewDocumentHandler(deps),
		institutionHandler: NewInstitutionHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/forecasts", MetricsMiddleware(s.forecastHandler.HandlePostForecast, "forecasts"))
	mux.HandleFunc("/documents/score", MetricsMiddleware(s.documentHandler.HandleScoreDocument, "documents_score"))
	mux.HandleFunc("/institutions", MetricsMiddleware(s.institutionHandler.HandleListInstitutions, "institutions"))
	mux.HandleFunc("/institutions/", MetricsMiddleware(s.institutionHandler.HandleGetInstitution, "institution"))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
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
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var (
		verr *model.ValidationError
		nerr *model.NoHistoricalDataError
		derr *model.DegenerateNormalizationError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", WrapKind(op, ErrValidation, err))
	case errors.Is(err, institution.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.As(err, &nerr):
		writeError(w, http.StatusInternalServerError, "no_historical_data", WrapKind(op, ErrForecast, err))
	case errors.As(err, &derr):
		writeError(w, http.StatusInternalServerError, "degenerate_normalization", WrapKind(op, ErrForecast, err))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", WrapKind(op, ErrTimeout, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
