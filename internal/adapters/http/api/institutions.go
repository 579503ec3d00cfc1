package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/admitcast/internal/domain/institution"
)

// InstitutionDependencies defines the interface for directory lookups.
type InstitutionDependencies interface {
	Institutions(ctx context.Context, query string) []institution.Institution
	Institution(ctx context.Context, id int) (institution.Institution, error)
}

// InstitutionHandler handles institution directory requests.
type InstitutionHandler struct {
	deps InstitutionDependencies
}

// NewInstitutionHandler creates a new institution handler.
func NewInstitutionHandler(deps InstitutionDependencies) *InstitutionHandler {
	return &InstitutionHandler{deps: deps}
}

type institutionsResponse struct {
	Institutions []institution.Institution `json:"institutions"`
}

// HandleListInstitutions handles GET /institutions[?q=name] requests.
func (h *InstitutionHandler) HandleListInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	list := h.deps.Institutions(r.Context(), r.URL.Query().Get("q"))
	if list == nil {
		list = []institution.Institution{}
	}
	writeJSON(w, http.StatusOK, institutionsResponse{Institutions: list})
}

// HandleGetInstitution handles GET /institutions/{id} requests.
func (h *InstitutionHandler) HandleGetInstitution(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_institution"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /institutions/
	path := strings.TrimPrefix(r.URL.Path, "/institutions/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	id, err := strconv.Atoi(path)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	inst, err := h.deps.Institution(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
