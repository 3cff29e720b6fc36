package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "gateway"}}

	require.NoError(t, c.ValidateIssuer("gateway"))
	require.NoError(t, c.ValidateIssuer(""))
	require.ErrorIs(t, c.ValidateIssuer("https://accounts.example"), jwtx.ErrIssuer)
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"spa", "workers"}}}

	require.NoError(t, c.ValidateAudience("workers"))
	require.NoError(t, c.ValidateAudience(""))
	require.ErrorIs(t, c.ValidateAudience("admin"), jwtx.ErrAudience)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := jwtx.NewClaims("u1", "", "", "gateway", "spa", time.Hour, now)

	t.Run("valid inside window", func(t *testing.T) {
		require.NoError(t, c.ValidateExpiry(now))
		require.NoError(t, c.ValidateExpiry(now.Add(59*time.Minute)))
	})

	t.Run("expired exactly at exp", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateExpiry(now.Add(time.Hour)), jwtx.ErrExpired)
	})

	t.Run("missing exp is expired", func(t *testing.T) {
		bare := &jwtx.Claims{}
		require.ErrorIs(t, bare.ValidateExpiry(now), jwtx.ErrExpired)
	})

	t.Run("exp not after iat is invalid", func(t *testing.T) {
		bad := jwtx.NewClaims("u1", "", "", "gateway", "spa", 0, now)
		require.ErrorIs(t, bad.ValidateExpiry(now.Add(-time.Minute)), jwtx.ErrInvalidClaim)
	})
}

func TestNewClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := jwtx.NewClaims("u1", "Alice", "https://cdn/a.png", "gateway", "spa", jwtx.DefaultClaimTTL, now)

	require.Equal(t, "u1", c.Subject)
	require.Equal(t, "gateway", c.Issuer)
	require.Equal(t, jwt.ClaimStrings{"spa"}, c.Audience)
	require.Equal(t, now.Unix()+3600, c.ExpiresAt.Unix())
	require.Equal(t, now.Unix(), c.IssuedAt.Unix())
	require.Equal(t, "Alice", c.Name)
	require.Equal(t, now.Add(time.Hour), c.ExpiresAtTime())
}
