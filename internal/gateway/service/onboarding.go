package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// compensateTimeout bounds the local delete that undoes a failed onboarding.
const compensateTimeout = 5 * time.Second

// Caller is the part of the broker bridge services need.
type Caller interface {
	Call(ctx context.Context, q broker.Queue, op broker.Op, body string, claim jwtx.Claims, attach *broker.Attachment) (broker.Result, error)
}

// UpstreamError carries a non-2xx worker reply back to the handler, which
// relays it to the client as is.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("worker replied %d", e.Status)
}

// NewAccount is the minimal local record reserved before the profile worker
// is asked to create the full profile.
type NewAccount struct {
	ID               string
	Username         string
	DisplayName      string
	Avatar           string
	PasswordHash     string
	FederatedSubject string
}

type profileCreate struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// OnboardingService creates an account in two steps: the local record, then
// the worker-owned profile. A failed second step deletes the first.
type OnboardingService struct {
	Store  store.Store
	Bridge Caller
	Logger *slog.Logger
}

func (s *OnboardingService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Onboard reserves the account locally and waits for the profile worker. On
// any failure of the worker call the local record is removed before the
// error is returned. attach is handed back on success.
func (s *OnboardingService) Onboard(ctx context.Context, acct NewAccount, claim jwtx.Claims, attach *broker.Attachment) (domain.User, broker.Result, error) {
	u := domain.User{
		ID:               acct.ID,
		Username:         acct.Username,
		DisplayName:      acct.DisplayName,
		Avatar:           acct.Avatar,
		PasswordHash:     acct.PasswordHash,
		FederatedSubject: acct.FederatedSubject,
		Role:             domain.RoleUser,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, broker.Result{}, fmt.Errorf("%w: username %q is taken", ErrConflict, acct.Username)
		}
		return domain.User{}, broker.Result{}, fmt.Errorf("create user: %w", err)
	}

	body, err := json.Marshal(profileCreate{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
	})
	if err != nil {
		s.compensate(ctx, u.ID)
		return domain.User{}, broker.Result{}, fmt.Errorf("encode profile: %w", err)
	}

	res, err := s.Bridge.Call(ctx, broker.QueueProfile, broker.OpProfileCreate, string(body), claim, attach)
	if err != nil {
		s.compensate(ctx, u.ID)
		return domain.User{}, broker.Result{}, err
	}
	if !res.OK() {
		s.compensate(ctx, u.ID)
		return domain.User{}, res, &UpstreamError{Status: res.Status, Body: res.Body}
	}

	s.logger().Info("account onboarded", "user_id", u.ID, "username", u.Username)
	return u, res, nil
}

// compensate runs even when ctx is already done; the client leaving must not
// strand a half-created account.
func (s *OnboardingService) compensate(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.Store.Users().DeleteUser(ctx, userID); err != nil {
		s.logger().Error("onboarding compensation failed", "user_id", userID, "error", err)
		return
	}
	s.logger().Warn("onboarding rolled back", "user_id", userID)
}
