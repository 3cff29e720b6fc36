package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
)

// CredentialCookies writes and clears the jwt and refresh_token pair.
type CredentialCookies struct {
	httpx.CookieOptions

	// RefreshTTL bounds the refresh_token cookie. Defaults to service.DefaultRefreshTTL.
	RefreshTTL time.Duration
}

// Set writes both cookies for a fresh sign-in.
func (c CredentialCookies) Set(w http.ResponseWriter, creds service.Credentials) {
	c.SetJWT(w, creds)

	ttl := c.RefreshTTL
	if ttl <= 0 {
		ttl = service.DefaultRefreshTTL
	}
	httpx.SetCredentialCookie(w, c.CookieOptions, httpx.CookieRefreshToken, creds.RefreshToken, time.Now().Add(ttl))
}

// SetJWT writes the jwt cookie, expiring with the claim.
func (c CredentialCookies) SetJWT(w http.ResponseWriter, creds service.Credentials) {
	httpx.SetCredentialCookie(w, c.CookieOptions, httpx.CookieJWT, creds.Token, creds.Claims.ExpiresAtTime())
}

// Clear expires both cookies.
func (c CredentialCookies) Clear(w http.ResponseWriter) {
	httpx.ClearCookie(w, c.CookieOptions, httpx.CookieJWT)
	httpx.ClearCookie(w, c.CookieOptions, httpx.CookieRefreshToken)
}
