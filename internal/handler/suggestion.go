package handler

import (
	"log/slog"
	"net/http"

	"redline/internal/config"
	"redline/internal/domain/models/docsystem"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/httputil"
)

// revalidateBodyLimit leaves room for a maximal body in 4-byte runes plus the envelope.
const revalidateBodyLimit = config.MaxDocumentBodyLength*4 + 64<<10

// SuggestionHandler handles suggestion HTTP requests
type SuggestionHandler struct {
	service suggestionSvc.SuggestionService
	logger  *slog.Logger
}

// NewSuggestionHandler creates a new suggestion handler
func NewSuggestionHandler(service suggestionSvc.SuggestionService, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the suggestion routes on mux
func (h *SuggestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents/{id}/suggestions", h.CreateSuggestions)
	mux.HandleFunc("GET /api/documents/{id}/suggestions", h.ListSuggestions)
	mux.HandleFunc("POST /api/documents/{id}/suggestions/prune", h.PruneSuggestions)
	mux.HandleFunc("PATCH /api/documents/{id}/suggestions/{suggestionId}", h.UpdateStatus)
	mux.HandleFunc("POST /api/documents/{id}/revalidate", h.Revalidate)
}

// CreateSuggestions anchors a batch of agent candidates
// POST /api/documents/{id}/suggestions
// Returns 201 with the number created; unanchorable items only lower the count
func (h *SuggestionHandler) CreateSuggestions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := pathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req suggestionSvc.CreateBatchRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = tenantID
	req.DocumentID = docID

	created, err := h.service.CreateBatch(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, map[string]int{"created": created})
}

// ListSuggestions returns the display list for a document version
// GET /api/documents/{id}/suggestions?version=M.m
func (h *SuggestionHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := pathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	req := suggestionSvc.ResolveRequest{TenantID: tenantID, DocumentID: docID}
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := docsystem.ParseVersion(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Version = &v
	}

	result, err := h.service.ResolveForDisplay(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// Revalidate re-checks pending suggestions after a document edit
// POST /api/documents/{id}/revalidate
func (h *SuggestionHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := pathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	var req suggestionSvc.RevalidateRequest
	if err := httputil.ParseJSONLimit(w, r, &req, revalidateBodyLimit); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = tenantID
	req.DocumentID = docID

	report, err := h.service.Revalidate(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// UpdateStatus applies a user decision to a pending suggestion
// PATCH /api/documents/{id}/suggestions/{suggestionId}
// Returns 200 with the suggestion, or 204 when it was deleted
func (h *SuggestionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := pathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}
	suggestionID, ok := pathParam(w, r, "suggestionId", "Suggestion ID")
	if !ok {
		return
	}

	var req suggestionSvc.UpdateStatusRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TenantID = tenantID
	req.DocumentID = docID
	req.SuggestionID = suggestionID

	updated, err := h.service.UpdateStatus(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}
	if updated == nil {
		httputil.RespondNoContent(w)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, updated)
}

// PruneSuggestions deletes expired pending suggestions of a document
// POST /api/documents/{id}/suggestions/prune
func (h *SuggestionHandler) PruneSuggestions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := pathParam(w, r, "id", "Document ID")
	if !ok {
		return
	}

	pruned, err := h.service.PruneExpired(r.Context(), tenantID, docID)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("suggestions pruned", "document_id", docID, "pruned", pruned)
	httputil.RespondJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}
