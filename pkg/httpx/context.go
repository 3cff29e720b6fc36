package httpx

import (
	"context"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeySubject ctxKey = "subject"
	ctxKeyClaims  ctxKey = "claims"
)

// WithClaims stores the verified claim for downstream handlers.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxKeySubject, c.Subject)
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFromContext returns the claim set by the auth middleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

// SubjectFromContext returns the authenticated subject or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject).(string)
	return s
}
