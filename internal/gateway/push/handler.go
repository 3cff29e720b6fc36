package push

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/coder/websocket"
)

// StatusUnauthorized is the close code sent when the ticket does not resolve.
const StatusUnauthorized websocket.StatusCode = 4001

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Handler upgrades ticketed requests to notification sockets. The ticket is
// the first value of the Sec-WebSocket-Protocol header and is echoed back as
// the negotiated subprotocol.
type Handler struct {
	Tickets        *TicketAuthority
	Registry       *Registry
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())
	ticket := ticketFromRequest(r)

	// Consumed before the upgrade so a replayed ticket never gets a socket.
	subject, consumeErr := h.Tickets.ConsumeTicket(r.Context(), ticket)

	opts := &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns}
	if ticket != "" {
		opts.Subprotocols = []string{ticket}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Warn("push upgrade failed", "error", err)
		return
	}

	if consumeErr != nil {
		if !errors.Is(consumeErr, ErrTicketNotFound) {
			log.Error("push ticket lookup failed", "error", consumeErr)
		}
		_ = conn.Close(StatusUnauthorized, "unauthorized")
		return
	}

	h.serve(r.Context(), conn, subject, log.With("sub", subject))
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, subject string, log *slog.Logger) {
	sock := h.Registry.Register(subject)
	defer h.Registry.Unregister(sock)
	log.Info("push socket opened")

	// Clients only listen; CloseRead handles control frames and reports
	// the peer going away.
	ctx = conn.CloseRead(ctx)

	ping := time.NewTicker(h.pingInterval())
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("push socket closed")
			_ = conn.CloseNow()
			return
		case <-h.Registry.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case msg := <-sock.Messages():
			if err := h.write(ctx, conn, msg); err != nil {
				log.Warn("push write failed", "error", err)
				_ = conn.CloseNow()
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Info("push socket ping failed", "error", err)
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout())
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Handler) writeTimeout() time.Duration {
	if h.WriteTimeout > 0 {
		return h.WriteTimeout
	}
	return defaultWriteTimeout
}

func (h *Handler) pingInterval() time.Duration {
	if h.PingInterval > 0 {
		return h.PingInterval
	}
	return defaultPingInterval
}

func ticketFromRequest(r *http.Request) string {
	for _, v := range r.Header.Values("Sec-WebSocket-Protocol") {
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				return p
			}
		}
	}
	return ""
}
