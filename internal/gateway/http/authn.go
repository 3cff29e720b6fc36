package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/metrics"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
)

// Authenticate resolves the caller from a Bearer header or, failing that,
// from the credential cookies. A stale jwt cookie backed by a refresh token
// is rotated in place and the new cookie is set on the response.
func (r *Router) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		claims, err := r.identify(w, req)
		if err != nil {
			writeError(w, req, err)
			return
		}

		ctx := httpx.WithClaims(req.Context(), claims)
		ctx = slogx.WithSubject(ctx, claims.Subject)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Router) identify(w http.ResponseWriter, req *http.Request) (jwtx.Claims, error) {
	if token := httpx.BearerToken(req); token != "" {
		claims, err := r.codec.Verify(token)
		if err != nil {
			return jwtx.Claims{}, err
		}
		return r.selfIssued(claims)
	}

	res, err := r.resolver.ResolveFromCookies(req.Header.Get("Cookie"))
	if err != nil {
		return jwtx.Claims{}, err
	}
	if res.Kind == service.Authenticated {
		return r.selfIssued(res.Claims)
	}

	creds, err := r.AuthService.Refresh(req.Context(), res.RefreshToken)
	if err != nil {
		metrics.RecordRefresh("failure")
		if errors.Is(err, service.ErrInvalidCredential) || errors.Is(err, service.ErrExpired) {
			// The refresh token is dead; stop the browser from replaying it.
			r.opts.Cookies.Clear(w)
		}
		return jwtx.Claims{}, err
	}

	metrics.RecordRefresh("success")
	slogx.FromContext(req.Context()).Debug("claim rotated from refresh token", "sub", creds.Claims.Subject)
	r.opts.Cookies.SetJWT(w, creds)
	return creds.Claims, nil
}

func (r *Router) selfIssued(claims jwtx.Claims) (jwtx.Claims, error) {
	if !r.codec.SelfIssued(claims) {
		return jwtx.Claims{}, service.ErrInvalidCredential
	}
	return claims, nil
}
