package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/idx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// Credentials are what a successful sign-in sets as cookies.
type Credentials struct {
	Token        string
	Claims       jwtx.Claims
	RefreshToken string
}

// SignInResult is either credentials or, when a second factor is needed, the
// pending step-up state to redirect with.
type SignInResult struct {
	Credentials *Credentials
	StepUpState string
}

// SignUpInput is a local account request.
type SignUpInput struct {
	Username    string
	Password    string
	DisplayName string
}

// AuthService composes the sign-in flows out of the narrower services.
type AuthService struct {
	Store      store.Store
	Codec      *jwtx.Codec
	Hasher     *cryptox.PasswordHasher
	Sessions   *SessionService
	StepUp     *StepUpService
	Onboarding *OnboardingService

	// Federation is nil when no external provider is configured.
	Federation *FederationClient
}

// SignUp onboards a local account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput, originIP string) (Credentials, error) {
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return Credentials{}, fmt.Errorf("hash password: %w", err)
	}

	display := in.DisplayName
	if display == "" {
		display = in.Username
	}

	acct := NewAccount{
		ID:           idx.New().String(),
		Username:     in.Username,
		DisplayName:  display,
		PasswordHash: hash,
	}
	return s.onboardAndSignIn(ctx, acct, originIP)
}

// SignIn checks a local password. Accounts with TOTP enabled get a pending
// step-up state instead of credentials.
func (s *AuthService) SignIn(ctx context.Context, username, password, originIP string) (SignInResult, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return SignInResult{}, ErrInvalidCredential
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == "" {
		return SignInResult{}, ErrInvalidCredential
	}
	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		return SignInResult{}, ErrInvalidCredential
	}

	return s.signInUser(ctx, user, originIP)
}

// CompleteStepUp trades a pending state and a correct code for credentials.
func (s *AuthService) CompleteStepUp(ctx context.Context, state, code, originIP string) (Credentials, error) {
	res, err := s.StepUp.VerifyCode(ctx, state, code)
	if err != nil {
		return Credentials{}, err
	}

	refresh, err := s.Sessions.CreateSession(ctx, res.Subject, originIP)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: res.Token, Claims: res.Claims, RefreshToken: refresh}, nil
}

// StartFederation issues the nonce and provider URL.
func (s *AuthService) StartFederation(ctx context.Context) (FlowStart, error) {
	if s.Federation == nil {
		return FlowStart{}, ErrProviderUnavailable
	}
	return s.Federation.StartFlow(ctx)
}

// CompleteFederation handles the provider redirect: the nonce is consumed
// first, then the code is exchanged. A provider subject seen for the first
// time is onboarded.
func (s *AuthService) CompleteFederation(ctx context.Context, nonce, code, originIP string) (SignInResult, error) {
	if s.Federation == nil {
		return SignInResult{}, ErrProviderUnavailable
	}
	if err := s.Federation.CompleteFlow(ctx, nonce); err != nil {
		return SignInResult{}, err
	}

	tokens, err := s.Federation.ExchangeCode(ctx, code)
	if err != nil {
		return SignInResult{}, err
	}
	ext := tokens.Claims

	user, err := s.Store.Users().GetUserByFederatedSubject(ctx, ext.Subject)
	if err == nil {
		return s.signInUser(ctx, user, originIP)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return SignInResult{}, fmt.Errorf("lookup federated user: %w", err)
	}

	id := idx.New().String()
	display := ext.Name
	if display == "" {
		display = federatedUsername(ext, id)
	}
	creds, err := s.onboardAndSignIn(ctx, NewAccount{
		ID:               id,
		Username:         federatedUsername(ext, id),
		DisplayName:      display,
		Avatar:           ext.Picture,
		FederatedSubject: ext.Subject,
	}, originIP)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Credentials: &creds}, nil
}

// Refresh rotates a refresh token into a new signed claim. The refresh token
// itself is unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	claims, err := s.Sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return Credentials{}, err
	}
	token, err := s.Codec.Sign(claims)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign claim: %w", err)
	}
	return Credentials{Token: token, Claims: claims, RefreshToken: refreshToken}, nil
}

// Logout revokes the session behind refreshToken.
func (s *AuthService) Logout(ctx context.Context, subject, refreshToken string) error {
	if refreshToken == "" {
		return ErrNotFound
	}
	return s.Sessions.RevokeBySubjectAndToken(ctx, subject, refreshToken)
}

func (s *AuthService) signInUser(ctx context.Context, user domain.User, originIP string) (SignInResult, error) {
	claims := s.Codec.Issue(user.ID, user.DisplayName, user.Avatar)
	token, err := s.Codec.Sign(claims)
	if err != nil {
		return SignInResult{}, fmt.Errorf("sign claim: %w", err)
	}

	if user.StepUpRequired() {
		state, err := s.StepUp.StartPendingLogin(ctx, user.ID, token, *user.MFASecret)
		if err != nil {
			return SignInResult{}, err
		}
		return SignInResult{StepUpState: state}, nil
	}

	refresh, err := s.Sessions.CreateSession(ctx, user.ID, originIP)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Credentials: &Credentials{Token: token, Claims: claims, RefreshToken: refresh}}, nil
}

// onboardAndSignIn mints the claim up front so the bridge can hand it back
// with the worker's success reply.
func (s *AuthService) onboardAndSignIn(ctx context.Context, acct NewAccount, originIP string) (Credentials, error) {
	claims := s.Codec.Issue(acct.ID, acct.DisplayName, acct.Avatar)
	token, err := s.Codec.Sign(claims)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign claim: %w", err)
	}

	_, res, err := s.Onboarding.Onboard(ctx, acct, claims, &broker.Attachment{Token: token, Claims: claims})
	if err != nil {
		return Credentials{}, err
	}

	refresh, err := s.Sessions.CreateSession(ctx, acct.ID, originIP)
	if err != nil {
		return Credentials{}, err
	}
	if res.Attach != nil {
		token, claims = res.Attach.Token, res.Attach.Claims
	}
	return Credentials{Token: token, Claims: claims, RefreshToken: refresh}, nil
}

var usernameStrip = regexp.MustCompile(`[^a-z0-9_]+`)

// federatedUsername derives a reservable name from the provider's email or
// display name, suffixed with the tail of the new account id.
func federatedUsername(c jwtx.Claims, id string) string {
	base := c.Email
	if at := strings.IndexByte(base, '@'); at > 0 {
		base = base[:at]
	}
	if base == "" {
		base = c.Name
	}
	base = usernameStrip.ReplaceAllString(strings.ToLower(base), "")
	if len(base) > 24 {
		base = base[:24]
	}
	if base == "" {
		base = "player"
	}
	return base + "_" + strings.ToLower(id[len(id)-6:])
}
