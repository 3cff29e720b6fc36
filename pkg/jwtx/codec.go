package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CodecOptions configures a Codec.
type CodecOptions struct {
	// Signer holds the single self-signing key.
	Signer *RS256Signer

	// Issuer and Audience stamped on, and required of, self-issued claims.
	Issuer   string
	Audience string

	// TTL of issued claims. Defaults to DefaultClaimTTL.
	TTL time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Codec issues, signs and verifies claims. Tokens whose header names the
// self kid are checked against the gateway key plus local issuer, audience
// and expiry rules; anything else is looked up in the federated provider's
// key set and checked against the provider's discovery metadata.
type Codec struct {
	signer   *RS256Signer
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser

	fedMu       sync.RWMutex
	fedKeys     *KeySet
	fedIssuer   string
	fedAudience string
}

// NewCodec validates the options and returns a ready Codec.
func NewCodec(opts CodecOptions) (*Codec, error) {
	if opts.Signer == nil {
		return nil, errors.New("jwtx: codec needs a signer")
	}
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: codec needs an issuer")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultClaimTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Codec{
		signer:   opts.Signer,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		now:      opts.Now,
		// Claim checks are done by hand below so the errors stay ours.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TrustProvider installs the federated key set and the issuer/audience that
// externally issued tokens must carry.
func (c *Codec) TrustProvider(issuer, audience string, keys *KeySet) {
	c.fedMu.Lock()
	defer c.fedMu.Unlock()
	c.fedKeys = keys
	c.fedIssuer = issuer
	c.fedAudience = audience
}

// SelfKID is the kid written into every token the gateway signs.
func (c *Codec) SelfKID() string { return c.signer.KID() }

// SelfJWKS publishes the self public key.
func (c *Codec) SelfJWKS() JWKS { return JWKS{Keys: []JWK{c.signer.PublicJWK()}} }

// SelfIssued reports whether claims carry the gateway's own issuer. Provider
// tokens also pass Verify but must never authenticate a request.
func (c *Codec) SelfIssued(claims Claims) bool { return claims.Issuer == c.issuer }

// Issue mints a claim for subject valid from now for the configured TTL.
func (c *Codec) Issue(subject, name, picture string) Claims {
	return NewClaims(subject, name, picture, c.issuer, c.audience, c.ttl, c.now().UTC())
}

// Sign encodes claims as header.payload.signature.
func (c *Codec) Sign(claims Claims) (string, error) {
	return c.signer.Sign(claims)
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verify implements Verifier.
func (c *Codec) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: header encoding", ErrMalformed)
	}
	var hdr tokenHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Claims{}, fmt.Errorf("%w: header json", ErrMalformed)
	}
	if hdr.Kid == "" || hdr.Alg == "" {
		return Claims{}, fmt.Errorf("%w: header fields", ErrMalformed)
	}
	if hdr.Alg != jwt.SigningMethodRS256.Alg() {
		return Claims{}, ErrAlgMismatch
	}

	if hdr.Kid == c.signer.KID() {
		claims, err := c.parse(token, c.signer.Public())
		if err != nil {
			return Claims{}, err
		}
		if err := claims.ValidateIssuer(c.issuer); err != nil {
			return Claims{}, err
		}
		if err := claims.ValidateAudience(c.audience); err != nil {
			return Claims{}, err
		}
		if err := claims.ValidateExpiry(c.now()); err != nil {
			return Claims{}, err
		}
		return claims, nil
	}

	c.fedMu.RLock()
	keys, issuer, audience := c.fedKeys, c.fedIssuer, c.fedAudience
	c.fedMu.RUnlock()

	if keys == nil {
		return Claims{}, ErrUnknownKID
	}
	pub, err := keys.Get(hdr.Kid)
	if err != nil {
		return Claims{}, err
	}

	claims, err := c.parse(token, pub)
	if err != nil {
		return Claims{}, err
	}
	// Provider tokens are only used transiently during sign-in, so the
	// provider's own lifetime is trusted and no local expiry check is made.
	if err := claims.ValidateIssuer(issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(audience); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) parse(token string, key any) (Claims, error) {
	var claims Claims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrInvalidSig
	default:
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}
}
