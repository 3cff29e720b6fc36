package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFederationStateTTL bounds the provider round trip.
	DefaultFederationStateTTL = 10 * time.Minute

	federationStateGrace = time.Minute
	providerHTTPTimeout  = 10 * time.Second
	maxProviderBody      = 1 << 20
)

// FederationConfig describes the external OpenID provider.
type FederationConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	StateTTL     time.Duration
}

// ProviderMetadata is the subset of the discovery document the gateway uses.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// ProviderTokens is the verified result of a code exchange.
type ProviderTokens struct {
	AccessToken string
	IDToken     string
	Claims      jwtx.Claims
}

// FlowStart is returned to the browser before redirecting to the provider.
type FlowStart struct {
	Nonce   string `json:"state"`
	AuthURL string `json:"auth_url"`
}

// FederationClient drives the authorization code flow against one provider.
type FederationClient struct {
	cfg        FederationConfig
	httpClient *http.Client
	logger     *slog.Logger
	codec      *jwtx.Codec
	states     ttlstore.Store[domain.PendingFederation]
	now        func() time.Time

	meta     ProviderMetadata
	oauth    *oauth2.Config
	keys     *jwtx.KeySet
	keyGroup singleflight.Group
}

// FederationOption configures a FederationClient.
type FederationOption func(*FederationClient)

// WithProviderHTTPClient replaces the HTTP client used for discovery, key
// fetches and code exchange.
func WithProviderHTTPClient(c *http.Client) FederationOption {
	return func(f *FederationClient) { f.httpClient = c }
}

// WithFederationLogger sets the logger.
func WithFederationLogger(l *slog.Logger) FederationOption {
	return func(f *FederationClient) { f.logger = l }
}

// WithFederationClock replaces time.Now.
func WithFederationClock(now func() time.Time) FederationOption {
	return func(f *FederationClient) { f.now = now }
}

// NewFederationClient fetches the provider's discovery document and key set
// and registers them with codec. Either fetch failing is fatal: without the
// keys no provider token can be verified.
func NewFederationClient(
	ctx context.Context,
	cfg FederationConfig,
	codec *jwtx.Codec,
	states ttlstore.Store[domain.PendingFederation],
	opts ...FederationOption,
) (*FederationClient, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("federation: issuer URL and client id are required")
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultFederationStateTTL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}

	f := &FederationClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: providerHTTPTimeout},
		logger:     slog.Default(),
		codec:      codec,
		states:     states,
		now:        time.Now,
		keys:       jwtx.NewKeySet(),
	}
	for _, opt := range opts {
		opt(f)
	}

	discoveryURL := strings.TrimSuffix(cfg.IssuerURL, "/") + "/.well-known/openid-configuration"
	if err := f.getJSON(ctx, discoveryURL, &f.meta); err != nil {
		return nil, fmt.Errorf("federation: discovery: %w", err)
	}
	if f.meta.Issuer == "" || f.meta.TokenEndpoint == "" || f.meta.JWKSURI == "" {
		return nil, errors.New("federation: discovery document is missing issuer, token_endpoint or jwks_uri")
	}

	if err := f.RefreshKeys(ctx); err != nil {
		return nil, err
	}

	f.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.meta.AuthorizationEndpoint,
			TokenURL:  f.meta.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	codec.TrustProvider(f.meta.Issuer, cfg.ClientID, f.keys)

	f.logger.Info("federated identity provider ready",
		"issuer", f.meta.Issuer,
		"keys", f.keys.Len(),
	)
	return f, nil
}

// Metadata returns the discovery document loaded at startup.
func (f *FederationClient) Metadata() ProviderMetadata { return f.meta }

// KeysReady reports whether at least one provider key is loaded.
func (f *FederationClient) KeysReady() bool { return f.keys.IsReady() }

// RefreshKeys refetches the provider key set. Concurrent callers share one
// request.
func (f *FederationClient) RefreshKeys(ctx context.Context) error {
	_, err, _ := f.keyGroup.Do("jwks", func() (any, error) {
		var set jwtx.JWKS
		if err := f.getJSON(ctx, f.meta.JWKSURI, &set); err != nil {
			return nil, fmt.Errorf("federation: fetch keys: %w", err)
		}
		n, err := f.keys.ResetFromJWKS(set)
		if err != nil {
			return nil, fmt.Errorf("federation: parse keys: %w", err)
		}
		if n == 0 {
			return nil, errors.New("federation: provider published no usable RSA keys")
		}
		f.logger.Debug("federated keys refreshed", "keys", n)
		return nil, nil
	})
	return err
}

// StartFlow issues a single-use nonce and the provider URL that carries it.
func (f *FederationClient) StartFlow(ctx context.Context) (FlowStart, error) {
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return FlowStart{}, err
	}

	state := domain.PendingFederation{Nonce: nonce, CreatedAt: f.now()}
	if err := f.states.Add(ctx, nonce, state, f.cfg.StateTTL+federationStateGrace); err != nil {
		if errors.Is(err, ttlstore.ErrExists) {
			return FlowStart{}, ErrConflict
		}
		return FlowStart{}, fmt.Errorf("store federation state: %w", err)
	}

	return FlowStart{Nonce: nonce, AuthURL: f.oauth.AuthCodeURL(nonce)}, nil
}

// CompleteFlow consumes nonce. A second call with the same nonce, or one
// for a nonce never issued, yields ErrNotFound; a stale one ErrExpired.
func (f *FederationClient) CompleteFlow(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrNotFound
	}
	state, err := f.states.Take(ctx, nonce)
	if errors.Is(err, ttlstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load federation state: %w", err)
	}
	if !f.now().Before(state.CreatedAt.Add(f.cfg.StateTTL)) {
		return ErrExpired
	}
	return nil
}

// ExchangeCode posts code and the client credentials to the token endpoint
// and verifies the returned ID token.
func (f *FederationClient) ExchangeCode(ctx context.Context, code string) (ProviderTokens, error) {
	if code == "" {
		return ProviderTokens{}, fmt.Errorf("%w: empty authorization code", ErrInvalidCredential)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	tok, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
			return ProviderTokens{}, fmt.Errorf("%w: code rejected by provider: %s", ErrInvalidCredential, rerr.ErrorCode)
		}
		return ProviderTokens{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return ProviderTokens{}, fmt.Errorf("%w: provider returned no id_token", ErrInvalidCredential)
	}

	claims, err := f.VerifyIDToken(ctx, idToken)
	if err != nil {
		return ProviderTokens{}, err
	}

	return ProviderTokens{AccessToken: tok.AccessToken, IDToken: idToken, Claims: claims}, nil
}

// VerifyIDToken runs the provider token through the codec. An unknown kid
// triggers one key refresh in case the provider rotated.
func (f *FederationClient) VerifyIDToken(ctx context.Context, raw string) (jwtx.Claims, error) {
	claims, err := f.codec.Verify(raw)
	if errors.Is(err, jwtx.ErrUnknownKID) {
		if rerr := f.RefreshKeys(ctx); rerr != nil {
			f.logger.Warn("federated key refresh failed", "error", rerr)
		} else {
			claims, err = f.codec.Verify(raw)
		}
	}
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: id token: %w", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return jwtx.Claims{}, fmt.Errorf("%w: id token has no subject", ErrInvalidCredential)
	}
	return claims, nil
}

func (f *FederationClient) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}
