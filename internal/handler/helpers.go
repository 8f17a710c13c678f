package handler

import (
	"errors"
	"net/http"

	"redline/internal/domain"
	"redline/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var httpErr domain.HTTPError

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, err.Error(), map[string]interface{}{"reason": "invalid_transition"})
	case errors.Is(err, domain.ErrDocumentLocked):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, err.Error(), map[string]interface{}{"reason": "document_locked"})
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	case errors.Is(err, domain.ErrStore):
		httputil.RespondError(w, http.StatusServiceUnavailable, "suggestion store unavailable")
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireTenant returns the tenant set by the auth middleware, writing a 401
// when it is missing.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := httputil.GetTenantID(r)
	if tenantID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "tenant not found in context")
		return "", false
	}
	return tenantID, true
}

// pathParam returns a required path value, writing a 400 when it is empty.
func pathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	return v, true
}
