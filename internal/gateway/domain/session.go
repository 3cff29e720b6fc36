package domain

import "time"

// RefreshToken is the persisted session record. The opaque token itself is
// only ever held by the client; the store keeps its fingerprint.
type RefreshToken struct {
	ID        string // token_id, safe to show to the client
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque token
	OriginIP  string
	CreatedAt time.Time
}

// Session is the client-facing view of a RefreshToken.
type Session struct {
	TokenID   string    `json:"token_id"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created"`
	Current   bool      `json:"current,omitempty"`
}
