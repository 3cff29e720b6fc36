package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gateway/pkg/slogx"
)

// APIError is the JSON error body every endpoint returns.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// WithDescription returns a copy carrying a caller-facing message.
func (e *APIError) WithDescription(desc string) *APIError {
	cp := *e
	cp.Description = desc
	return &cp
}

var (
	ErrUnauthenticated     = &APIError{Status: http.StatusUnauthorized, Code: "unauthenticated", Description: "authentication required"}
	ErrExpired             = &APIError{Status: http.StatusUnauthorized, Code: "expired", Description: "credential expired"}
	ErrInvalidCredential   = &APIError{Status: http.StatusUnauthorized, Code: "invalid_credential", Description: "credential rejected"}
	ErrBadRequest          = &APIError{Status: http.StatusBadRequest, Code: "bad_request", Description: "malformed request"}
	ErrNotFound            = &APIError{Status: http.StatusNotFound, Code: "not_found", Description: "not found"}
	ErrConflict            = &APIError{Status: http.StatusConflict, Code: "conflict", Description: "conflict"}
	ErrRateLimited         = &APIError{Status: http.StatusTooManyRequests, Code: "rate_limit_exceeded", Description: "too many requests, try again later"}
	ErrUpstreamUnavailable = &APIError{Status: http.StatusServiceUnavailable, Code: "upstream_unavailable", Description: "service temporarily unavailable"}
	ErrGatewayTimeout      = &APIError{Status: http.StatusGatewayTimeout, Code: "gateway_timeout", Description: "upstream did not respond in time"}
	ErrInternal            = &APIError{Status: http.StatusInternalServerError, Code: "internal", Description: "internal error"}
)

// WriteError renders err. Anything that is not an *APIError becomes a 500
// with a generic body so internal details never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal
	}
	if apiErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+apiErr.Code+`"`)
	}
	WriteJSON(w, apiErr.Status, apiErr)
}

func logFromRequest(r *http.Request) *slog.Logger {
	return slogx.FromContext(r.Context())
}
