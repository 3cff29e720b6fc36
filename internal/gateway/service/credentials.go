package service

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// ResolutionKind says what a cookie header amounts to.
type ResolutionKind int

const (
	// Authenticated carries a verified, unexpired claim.
	Authenticated ResolutionKind = iota + 1
	// NeedsRefresh carries a refresh token the caller must rotate.
	NeedsRefresh
)

// Resolution is the outcome of ResolveFromCookies.
type Resolution struct {
	Kind         ResolutionKind
	Claims       jwtx.Claims
	RefreshToken string
}

// CredentialResolver turns request cookies into an identity.
type CredentialResolver struct {
	Verifier jwtx.Verifier
	Now      func() time.Time
}

// ResolveFromCookies parses a raw Cookie header. The first jwt and first
// refresh_token values win. A verified jwt with now < exp is Authenticated;
// anything else falls back to the refresh token when there is one.
func (r *CredentialResolver) ResolveFromCookies(rawCookieHeader string) (Resolution, error) {
	jwtValue, refresh := parseCredentialCookies(rawCookieHeader)
	if jwtValue == "" && refresh == "" {
		return Resolution{}, ErrUnauthenticated
	}

	if jwtValue != "" {
		if claims, err := r.Verifier.Verify(jwtValue); err == nil && r.now().Before(claims.ExpiresAtTime()) {
			return Resolution{Kind: Authenticated, Claims: claims}, nil
		}
	}

	if refresh != "" {
		return Resolution{Kind: NeedsRefresh, RefreshToken: refresh}, nil
	}
	return Resolution{}, ErrExpired
}

func (r *CredentialResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func parseCredentialCookies(header string) (jwtValue, refresh string) {
	for pair := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.TrimSpace(name) {
		case httpx.CookieJWT:
			if jwtValue == "" {
				jwtValue = value
			}
		case httpx.CookieRefreshToken:
			if refresh == "" {
				refresh = value
			}
		}
	}
	return jwtValue, refresh
}
