package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClaimTTL is the lifetime of a self-issued claim.
const DefaultClaimTTL = time.Hour

// Claims is the identity assertion carried in the `jwt` cookie and stamped
// onto every message forwarded to a backend worker. Federated ID tokens are
// decoded into the same shape.
type Claims struct {
	jwt.RegisteredClaims

	// Optional profile hints. Self-issued claims only carry them on the first
	// mint after sign-in; a rotation does not restore them.
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Email   string `json:"email,omitempty"`
}

// NewClaims builds a claim valid for [now, now+ttl).
func NewClaims(subject, name, picture, issuer, audience string, ttl time.Duration, now time.Time) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:    name,
		Picture: picture,
	}
	if audience != "" {
		c.Audience = jwt.ClaimStrings{audience}
	}
	return c
}

// ExpiresAtTime returns the expiry or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateIssuer checks the issuer matches expected. Empty expected skips the check.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks the audience contains expected. Empty expected skips the check.
func (c *Claims) ValidateAudience(expected string) error {
	if expected == "" {
		return nil
	}
	if !slices.Contains(c.Audience, expected) {
		return ErrAudience
	}
	return nil
}

// ValidateExpiry reports ErrExpired unless now < exp. A claim without an
// expiry is treated as expired; exp > iat is also enforced here.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrExpired
	}
	if c.IssuedAt != nil && !c.ExpiresAt.After(c.IssuedAt.Time) {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
