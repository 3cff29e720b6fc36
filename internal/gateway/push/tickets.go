// Package push authorizes and serves the per-user notification sockets.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
)

// DefaultTicketTTL is how long an issued ticket waits for its handshake.
const DefaultTicketTTL = 30 * time.Second

var ErrTicketNotFound = errors.New("push: ticket not found")

// TicketAuthority issues one-time socket tickets.
type TicketAuthority struct {
	store ttlstore.Store[domain.SocketTicket]
	ttl   time.Duration
	now   func() time.Time
}

// NewTicketAuthority returns an authority backed by s. A non-positive ttl
// uses DefaultTicketTTL.
func NewTicketAuthority(s ttlstore.Store[domain.SocketTicket], ttl time.Duration) *TicketAuthority {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketAuthority{store: s, ttl: ttl, now: time.Now}
}

// TTL returns the ticket lifetime.
func (a *TicketAuthority) TTL() time.Duration { return a.ttl }

// IssueTicket binds a fresh random ticket to subject.
func (a *TicketAuthority) IssueTicket(ctx context.Context, subject string) (string, error) {
	ticket, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	t := domain.SocketTicket{Ticket: ticket, Subject: subject, CreatedAt: a.now()}
	if err := a.store.Add(ctx, ticket, t, a.ttl); err != nil {
		return "", fmt.Errorf("store ticket: %w", err)
	}
	return ticket, nil
}

// ConsumeTicket resolves and invalidates ticket in one step. A second
// consumption, or an unknown or lapsed ticket, yields ErrTicketNotFound.
func (a *TicketAuthority) ConsumeTicket(ctx context.Context, ticket string) (string, error) {
	if ticket == "" {
		return "", ErrTicketNotFound
	}
	t, err := a.store.Take(ctx, ticket)
	if errors.Is(err, ttlstore.ErrNotFound) {
		return "", ErrTicketNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load ticket: %w", err)
	}
	return t.Subject, nil
}
