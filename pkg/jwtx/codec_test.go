package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "gateway"
	testAudience = "spa"

	providerIssuer   = "https://accounts.example"
	providerAudience = "client-123"
)

func newTestSigner(t *testing.T, kid string) *jwtx.RS256Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s, err := jwtx.NewSignerRS256(kid, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	require.NoError(t, err)
	return s
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestCodec(t *testing.T, clock *fakeClock) *jwtx.Codec {
	t.Helper()

	codec, err := jwtx.NewCodec(jwtx.CodecOptions{
		Signer:   newTestSigner(t, "self"),
		Issuer:   testIssuer,
		Audience: testAudience,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return codec
}

func TestCodecRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	codec := newTestCodec(t, clock)

	issued := codec.Issue("u1", "Alice", "https://cdn.example/a.png")
	require.Equal(t, clock.t.Unix()+3600, issued.ExpiresAt.Unix())

	token, err := codec.Sign(issued)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, issued.Subject, got.Subject)
	require.Equal(t, issued.Issuer, got.Issuer)
	require.Equal(t, issued.Audience, got.Audience)
	require.Equal(t, issued.IssuedAt.Unix(), got.IssuedAt.Unix())
	require.Equal(t, issued.ExpiresAt.Unix(), got.ExpiresAt.Unix())
	require.Equal(t, issued.Name, got.Name)
	require.Equal(t, issued.Picture, got.Picture)
	require.True(t, codec.SelfIssued(got))

	t.Run("fails once now reaches expiry", func(t *testing.T) {
		clock.t = issued.ExpiresAt.Time
		_, err := codec.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})
}

func TestCodecRejectsTampering(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC()}
	codec := newTestCodec(t, clock)

	token, err := codec.Sign(codec.Issue("u1", "", ""))
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	t.Run("payload swap", func(t *testing.T) {
		other, err := codec.Sign(codec.Issue("admin", "", ""))
		require.NoError(t, err)
		forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

		_, err = codec.Verify(forged)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("wrong part count", func(t *testing.T) {
		_, err := codec.Verify(parts[0] + "." + parts[1])
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("garbage header", func(t *testing.T) {
		_, err := codec.Verify("!!!." + parts[1] + "." + parts[2])
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("header without kid", func(t *testing.T) {
		hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
		_, err := codec.Verify(hdr + "." + parts[1] + "." + parts[2])
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		hs := jwt.NewWithClaims(jwt.SigningMethodHS256, codec.Issue("u1", "", ""))
		hs.Header["kid"] = codec.SelfKID()
		signed, err := hs.SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = codec.Verify(signed)
		require.ErrorIs(t, err, jwtx.ErrAlgMismatch)
	})

	t.Run("unknown kid without provider", func(t *testing.T) {
		stranger := newTestSigner(t, "stranger")
		signed, err := stranger.Sign(codec.Issue("u1", "", ""))
		require.NoError(t, err)

		_, err = codec.Verify(signed)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})
}

func TestCodecSelfIssuerAndAudience(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC()}
	codec := newTestCodec(t, clock)

	c := codec.Issue("u1", "", "")
	c.Issuer = "someone-else"
	token, err := codec.Sign(c)
	require.NoError(t, err)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)

	c = codec.Issue("u1", "", "")
	c.Audience = jwt.ClaimStrings{"other"}
	token, err = codec.Sign(c)
	require.NoError(t, err)
	_, err = codec.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrAudience)
}

func TestCodecFederatedTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now().UTC()}
	codec := newTestCodec(t, clock)

	provider := newTestSigner(t, "google-1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(provider.PublicJWK()))
	codec.TrustProvider(providerIssuer, providerAudience, keys)

	idToken := func(iss, aud string, ttl time.Duration) string {
		c := jwtx.NewClaims("google-sub-42", "Bob", "", iss, aud, ttl, clock.t)
		c.Email = "bob@example.com"
		s, err := provider.Sign(c)
		require.NoError(t, err)
		return s
	}

	t.Run("accepts provider token", func(t *testing.T) {
		got, err := codec.Verify(idToken(providerIssuer, providerAudience, time.Minute))
		require.NoError(t, err)
		require.Equal(t, "google-sub-42", got.Subject)
		require.Equal(t, "bob@example.com", got.Email)
		require.False(t, codec.SelfIssued(got))
	})

	t.Run("no local expiry check", func(t *testing.T) {
		_, err := codec.Verify(idToken(providerIssuer, providerAudience, -time.Minute))
		require.NoError(t, err)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		_, err := codec.Verify(idToken("https://evil.example", providerAudience, time.Minute))
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		_, err := codec.Verify(idToken(providerIssuer, "another-client", time.Minute))
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("kid not in provider set", func(t *testing.T) {
		other := newTestSigner(t, "google-2")
		s, err := other.Sign(jwtx.NewClaims("x", "", "", providerIssuer, providerAudience, time.Minute, clock.t))
		require.NoError(t, err)

		_, err = codec.Verify(s)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})
}

func TestNewCodecValidation(t *testing.T) {
	_, err := jwtx.NewCodec(jwtx.CodecOptions{Issuer: "x"})
	require.Error(t, err)

	_, err = jwtx.NewCodec(jwtx.CodecOptions{Signer: newTestSigner(t, "k")})
	require.Error(t, err)
}
