package domain

import "time"

// Roles stamped on local account records.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID               string
	Username         string
	DisplayName      string
	Avatar           string
	PasswordHash     string // argon2 encoded, empty for federated accounts
	FederatedSubject string // provider "sub", empty for local accounts
	Role             string
	MFAEnabled       *time.Time // when TOTP was enabled (nullable)
	MFASecret        *string    // base32 TOTP secret (nullable)
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StepUpRequired reports whether sign-in needs a second factor.
func (u User) StepUpRequired() bool {
	return u.MFAEnabled != nil && u.MFASecret != nil && *u.MFASecret != ""
}
