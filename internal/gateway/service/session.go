package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/idx"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// DefaultRefreshTTL bounds how long a refresh token may be used to rotate.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// SessionService owns refresh tokens: one per signed-in device.
type SessionService struct {
	Store      store.Store
	Codec      *jwtx.Codec
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}

// CreateSession persists a new refresh token record and returns the opaque
// token for the caller to set as a cookie.
func (s *SessionService) CreateSession(ctx context.Context, subject, originIP string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	err = s.Store.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    subject,
		TokenHash: cryptox.FingerprintToken(token),
		OriginIP:  originIP,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("create refresh token: %w", err)
	}
	return token, nil
}

// Rotate mints a fresh claim for the refresh token's subject. The record is
// left in place so the same token keeps working until it is revoked. Profile
// hints are not restored.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (jwtx.Claims, error) {
	if refreshToken == "" {
		return jwtx.Claims{}, ErrUnauthenticated
	}

	rec, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return jwtx.Claims{}, ErrInvalidCredential
	}
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	if !s.now().Before(rec.CreatedAt.Add(s.refreshTTL())) {
		return jwtx.Claims{}, ErrExpired
	}

	return s.Codec.Issue(rec.UserID, "", ""), nil
}

// ListSessions returns the subject's sessions, newest first. When
// currentToken is one of them it is flagged.
func (s *SessionService) ListSessions(ctx context.Context, subject, currentToken string) ([]domain.Session, error) {
	recs, err := s.Store.RefreshTokens().ListRefreshTokensByUser(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}

	var currentHash string
	if currentToken != "" {
		currentHash = cryptox.FingerprintToken(currentToken)
	}

	out := make([]domain.Session, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Session{
			TokenID:   r.ID,
			IP:        r.OriginIP,
			CreatedAt: r.CreatedAt,
			Current:   currentHash != "" && r.TokenHash == currentHash,
		})
	}
	return out, nil
}

// Revoke deletes a session by token id. Nothing matching yields ErrNotFound
// but leaves no state behind, so repeating it is harmless.
func (s *SessionService) Revoke(ctx context.Context, tokenID string) error {
	ok, err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RevokeOwned deletes tokenID only when it belongs to subject.
func (s *SessionService) RevokeOwned(ctx context.Context, subject, tokenID string) error {
	sessions, err := s.ListSessions(ctx, subject, "")
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.TokenID == tokenID {
			return s.Revoke(ctx, tokenID)
		}
	}
	return ErrNotFound
}

// RevokeBySubjectAndToken deletes the session holding refreshToken if it
// belongs to subject. Used on logout.
func (s *SessionService) RevokeBySubjectAndToken(ctx context.Context, subject, refreshToken string) error {
	ok, err := s.Store.RefreshTokens().DeleteUserRefreshToken(ctx, subject, cryptox.FingerprintToken(refreshToken))
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
