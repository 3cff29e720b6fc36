package service

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// MFAService manages the TOTP lifecycle: enroll, verify to enable, disable.
type MFAService struct {
	Store  store.Store
	StepUp *StepUpService
	Issuer string // shown in authenticator apps
}

// EnrollTOTP generates a secret and stores it without enabling step-up; the
// user must prove possession with VerifyTOTP first. Enrolling again before
// verifying replaces the secret.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (domain.TOTPEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFAEnabled != nil {
		return domain.TOTPEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      StepUpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   s.StepUp.Algorithm,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if err := s.Store.Users().UpdateMFASecret(ctx, userID, key.Secret()); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	return domain.TOTPEnrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifyTOTP checks a code against the enrolled secret and enables step-up.
func (s *MFAService) VerifyTOTP(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFASecret == nil || *user.MFASecret == "" {
		return ErrMFANotEnrolled
	}
	if user.MFAEnabled != nil {
		return ErrMFAAlreadyEnabled
	}

	if err := s.check(*user.MFASecret, code); err != nil {
		return err
	}

	if err := s.Store.Users().EnableMFA(ctx, userID); err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}
	return nil
}

// DisableTOTP turns step-up off after a valid code.
func (s *MFAService) DisableTOTP(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !user.StepUpRequired() {
		return ErrMFANotEnabled
	}

	if err := s.check(*user.MFASecret, code); err != nil {
		return err
	}

	if err := s.Store.Users().DisableMFA(ctx, userID); err != nil {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}
	return nil
}

func (s *MFAService) check(secret, code string) error {
	ok, err := s.StepUp.CheckCode(secret, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTOTPCode
	}
	return nil
}
