package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/domain"
	"github.com/aussiebroadwan/gateway/internal/gateway/ttlstore"
	"github.com/aussiebroadwan/gateway/pkg/cryptox"
	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// StepUpPeriod is the TOTP bucket width in seconds.
	StepUpPeriod = 30

	// DefaultStepUpTTL is how long a pending step-up login waits for a code.
	DefaultStepUpTTL = 5 * time.Minute

	// MaxStepUpAttempts is the number of wrong codes a pending login tolerates.
	MaxStepUpAttempts = 5

	// stepUpGrace keeps lapsed states around briefly so they report
	// ErrExpired rather than ErrNotFound.
	stepUpGrace = time.Minute
)

// ParseOTPAlgorithm maps "sha1", "sha256" or "sha512" to an otp.Algorithm.
func ParseOTPAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToLower(name) {
	case "", "sha1":
		return otp.AlgorithmSHA1, nil
	case "sha256":
		return otp.AlgorithmSHA256, nil
	case "sha512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("unknown OTP algorithm %q", name)
	}
}

// StepUpResult is what a successful VerifyCode releases.
type StepUpResult struct {
	Subject string
	Token   string
	Claims  jwtx.Claims
}

// StepUpService verifies time-based one-time codes against pending logins.
type StepUpService struct {
	States    ttlstore.Store[domain.PendingStepUp]
	Verifier  jwtx.Verifier
	TTL       time.Duration
	Algorithm otp.Algorithm
	Now       func() time.Time
}

func (s *StepUpService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *StepUpService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultStepUpTTL
}

func (s *StepUpService) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    StepUpPeriod,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: s.Algorithm,
	}
}

// GenerateCode returns the 6-digit code for the current 30 second bucket.
func (s *StepUpService) GenerateCode(secret string) (string, error) {
	return s.GenerateCodeAt(secret, s.now())
}

// GenerateCodeAt returns the code for the bucket containing t.
func (s *StepUpService) GenerateCodeAt(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, s.opts())
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

// CheckCode reports whether candidate is the code for secret in the
// current bucket. Used by enrollment, where there is no pending state.
func (s *StepUpService) CheckCode(secret, candidate string) (bool, error) {
	return s.checkAt(secret, candidate, s.now())
}

func (s *StepUpService) checkAt(secret, candidate string, t time.Time) (bool, error) {
	expected, err := s.GenerateCodeAt(secret, t)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1, nil
}

// StartPendingLogin parks a signed claim until the matching code arrives and
// returns the opaque state the client echoes back.
func (s *StepUpService) StartPendingLogin(ctx context.Context, subject, signedToken, secret string) (string, error) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	pending := domain.PendingStepUp{
		State:        state,
		Subject:      subject,
		PendingToken: signedToken,
		Secret:       secret,
		CreatedAt:    s.now(),
	}
	if err := s.States.Add(ctx, state, pending, s.ttl()+stepUpGrace); err != nil {
		if errors.Is(err, ttlstore.ErrExists) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("store step-up state: %w", err)
	}
	return state, nil
}

// VerifyCode checks candidate against the state's secret for the current
// bucket only. Success consumes the state. A wrong code leaves it usable
// until MaxStepUpAttempts wrong codes have been seen. The attempt count is
// bumped in the same store step as the check, so concurrent guesses never
// see the state missing.
func (s *StepUpService) VerifyCode(ctx context.Context, state, candidate string) (StepUpResult, error) {
	var pending domain.PendingStepUp
	err := s.States.Update(ctx, state, func(p *domain.PendingStepUp) (bool, error) {
		pending = *p
		now := s.now()
		if !now.Before(p.CreatedAt.Add(s.ttl())) {
			return false, ErrExpired
		}

		ok, err := s.checkAt(p.Secret, candidate, now)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}

		p.Attempts++
		if p.Attempts >= MaxStepUpAttempts {
			return false, ErrTooManyAttempts
		}
		return true, ErrInvalidTOTPCode
	})
	if errors.Is(err, ttlstore.ErrNotFound) {
		return StepUpResult{}, ErrNotFound
	}
	if errors.Is(err, ErrExpired) || errors.Is(err, ErrTooManyAttempts) || errors.Is(err, ErrInvalidTOTPCode) {
		return StepUpResult{}, err
	}
	if err != nil {
		return StepUpResult{}, fmt.Errorf("verify step-up state: %w", err)
	}

	claims, err := s.Verifier.Verify(pending.PendingToken)
	if err != nil {
		return StepUpResult{}, fmt.Errorf("%w: pending claim: %v", ErrInvalidCredential, err)
	}

	return StepUpResult{Subject: pending.Subject, Token: pending.PendingToken, Claims: claims}, nil
}
