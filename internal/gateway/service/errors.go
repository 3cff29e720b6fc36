package service

import "errors"

var (
	// ErrUnauthenticated means no credential was presented at all.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrExpired means a credential was presented but is stale.
	ErrExpired = errors.New("credential expired")
	// ErrInvalidCredential covers wrong passwords and rejected tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNotFound means a single-use state, session or account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique name or nonce is already taken.
	ErrConflict = errors.New("conflict")
	// ErrProviderUnavailable means the federated identity provider could not be reached.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	ErrInvalidTOTPCode   = errors.New("invalid TOTP code")
	ErrTooManyAttempts   = errors.New("too many step-up attempts")
	ErrMFANotEnrolled    = errors.New("MFA not enrolled")
	ErrMFANotEnabled     = errors.New("MFA not enabled for this user")
	ErrMFAAlreadyEnabled = errors.New("MFA already enabled for this user")
)
