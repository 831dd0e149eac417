package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/btorch/internal/apperr"
	"github.com/jmylchreest/btorch/internal/correlation"
)

// errorDetail is one field-level validation complaint.
type errorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorBody is the JSON shape every raw (non-huma) error response takes.
// Huma-registered routes use huma's own error helpers instead; see the
// package doc in httpapi.go for why the two error surfaces are not unified.
type errorBody struct {
	Status        string        `json:"status"`
	Error         string        `json:"error"`
	Message       string        `json:"message"`
	Details       []errorDetail `json:"details"`
	Timestamp     string        `json:"timestamp"`
	CorrelationID string        `json:"correlationId"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, details []errorDetail) {
	body := errorBody{
		Status:        "error",
		Error:         http.StatusText(status),
		Message:       message,
		Details:       details,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlation.FromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAppError maps an apperr.Error (or an opaque error, as internal) to
// the wire error schema.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		writeError(w, r, ae.HTTPStatus(), ae.Message, nil)
		return
	}
	writeError(w, r, http.StatusInternalServerError, err.Error(), nil)
}

// validationError adapts a validator.v10 error into huma's error envelope
// for huma-registered routes (see package doc in httpapi.go for why these
// routes keep huma's own error schema rather than errorBody).
func validationError(err error) error {
	return huma.Error400BadRequest(err.Error())
}

func notFoundErr(msg string) error {
	return huma.Error404NotFound(msg)
}

func conflictErr(msg string) error {
	return huma.Error409Conflict(msg)
}

// appErrorToHuma maps an apperr.Error onto the matching huma error helper,
// falling back to 500 for anything uncategorized.
func appErrorToHuma(err error) error {
	ae, ok := apperr.As(err)
	if !ok {
		return huma.Error500InternalServerError(err.Error())
	}
	switch ae.Code {
	case apperr.CodeValidation:
		return huma.Error400BadRequest(ae.Message)
	case apperr.CodeNotFound:
		return huma.Error404NotFound(ae.Message)
	case apperr.CodeConflict:
		return huma.Error409Conflict(ae.Message)
	case apperr.CodeUpstream:
		return huma.Error502BadGateway(ae.Message)
	default:
		return huma.Error500InternalServerError(ae.Message)
	}
}
