package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/push"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
)

// toAPIError maps a service, broker or codec error onto the client-facing
// taxonomy. Unknown errors become ErrInternal.
func toAPIError(err error) *httpx.APIError {
	var apiErr *httpx.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return httpx.ErrUnauthenticated
	case errors.Is(err, service.ErrExpired), errors.Is(err, jwtx.ErrExpired):
		return httpx.ErrExpired
	case errors.Is(err, service.ErrTooManyAttempts):
		return httpx.ErrInvalidCredential.WithDescription("too many incorrect codes, sign in again")
	case errors.Is(err, service.ErrInvalidTOTPCode):
		return httpx.ErrInvalidCredential.WithDescription("incorrect code")
	case errors.Is(err, service.ErrInvalidCredential),
		errors.Is(err, jwtx.ErrMalformed),
		errors.Is(err, jwtx.ErrAlgMismatch),
		errors.Is(err, jwtx.ErrUnknownKID),
		errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrIssuer),
		errors.Is(err, jwtx.ErrAudience),
		errors.Is(err, jwtx.ErrInvalidClaim):
		return httpx.ErrInvalidCredential
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, push.ErrTicketNotFound),
		errors.Is(err, store.ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, store.ErrAlreadyExists):
		return httpx.ErrConflict
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		return httpx.ErrConflict.WithDescription("MFA is already enabled for this user")
	case errors.Is(err, service.ErrMFANotEnrolled):
		return httpx.ErrBadRequest.WithDescription("no authenticator enrolled")
	case errors.Is(err, service.ErrMFANotEnabled):
		return httpx.ErrBadRequest.WithDescription("MFA is not enabled for this user")
	case errors.Is(err, broker.ErrUnknownOp), errors.Is(err, broker.ErrUnknownQueue):
		return httpx.ErrBadRequest
	case errors.Is(err, service.ErrProviderUnavailable),
		errors.Is(err, broker.ErrUpstreamUnavailable),
		errors.Is(err, broker.ErrOutboxFull):
		return httpx.ErrUpstreamUnavailable
	case errors.Is(err, broker.ErrGatewayTimeout):
		return httpx.ErrGatewayTimeout
	default:
		return httpx.ErrInternal
	}
}

// writeError logs and renders err. A worker rejection during onboarding is
// relayed with the worker's own status and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var upstream *service.UpstreamError
	if errors.As(err, &upstream) {
		log.Warn("worker rejected request", "status", upstream.Status)
		httpx.WriteRaw(w, upstream.Status, upstream.Body)
		return
	}

	apiErr := toAPIError(err)
	switch {
	case errors.Is(err, context.Canceled):
		log.Debug("request canceled", "err", err)
	case apiErr.Status >= http.StatusInternalServerError:
		log.Error("request failed", "err", err)
	default:
		log.Warn("request rejected", "code", apiErr.Code, "err", err)
	}
	httpx.WriteError(w, apiErr)
}
