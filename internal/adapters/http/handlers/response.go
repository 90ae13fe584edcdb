package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

// writeGuardError maps a SecurityError to its status and public message.
// Anything else is logged and answered with a generic 500.
func writeGuardError(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := domain.CodeOf(err)
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected handler error")
		writeError(w, http.StatusInternalServerError, "", http.StatusText(http.StatusInternalServerError))
		return
	}
	writeError(w, StatusFor(code), code, domain.PublicMessage(code))
}

func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
