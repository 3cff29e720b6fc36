package http

import (
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
)

// SessionsHandler lets a subject see and revoke its refresh tokens.
type SessionsHandler struct {
	SessionService *service.SessionService
}

// HandleList handles GET /v1/sessions
//
//	@Summary		List sessions
//	@Description	Lists the caller's refresh tokens, newest first. The one used by this browser is flagged current.
//	@Tags			Sessions
//	@Security		CookieAuth
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.SessionsResponse	"Sessions"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Router			/v1/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	subject := httpx.SubjectFromContext(r.Context())

	sessions, err := h.SessionService.ListSessions(r.Context(), subject, cookieValue(r, httpx.CookieRefreshToken))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := gatewaysdk.SessionsResponse{Sessions: make([]gatewaysdk.SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, gatewaysdk.SessionResponse{
			TokenID:   s.TokenID,
			IP:        s.IP,
			CreatedAt: s.CreatedAt,
			Current:   s.Current,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke handles DELETE /v1/sessions/{token_id}
//
//	@Summary		Revoke a session
//	@Tags			Sessions
//	@Security		CookieAuth
//	@Param			token_id	path	string	true	"Session token id"
//	@Success		204			"Revoked"
//	@Failure		401			{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Failure		404			{object}	gatewaysdk.ErrorResponse	"No such session for this subject"
//	@Router			/v1/sessions/{token_id} [delete].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	subject := httpx.SubjectFromContext(r.Context())

	if err := h.SessionService.RevokeOwned(r.Context(), subject, r.PathValue("token_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
