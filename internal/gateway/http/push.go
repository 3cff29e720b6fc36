package http

import (
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/push"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
)

// TicketHandler issues push socket tickets.
type TicketHandler struct {
	Tickets *push.TicketAuthority
}

// ServeHTTP handles POST /v1/push/ticket
//
//	@Summary		Issue a push socket ticket
//	@Description	Returns a single-use ticket. Offer it as the WebSocket subprotocol when opening /v1/push/ws.
//	@Tags			Push
//	@Security		CookieAuth
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.TicketResponse	"Ticket"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Router			/v1/push/ticket [post].
func (h *TicketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Tickets.IssueTicket(r.Context(), httpx.SubjectFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.TicketResponse{
		Ticket:    ticket,
		ExpiresIn: int(h.Tickets.TTL().Seconds()),
	})
}
