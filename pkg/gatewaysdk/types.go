package gatewaysdk

import (
	"time"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
)

// ErrorResponse is the body of every non-2xx gateway response that did not
// come from a backend worker.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Sign-in
// ============================================================================

// SignUpRequest creates a local account.
type SignUpRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,max=64"`
}

// SignInRequest authenticates a local account.
type SignInRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// StepUpRequest completes a pending sign-in with a TOTP code.
type StepUpRequest struct {
	State string `json:"state" validate:"required"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// SignInResponse describes the credential just set as the jwt cookie.
type SignInResponse struct {
	Subject   string    `json:"sub"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// StepUpRequiredResponse accompanies the 303 to the step-up page.
type StepUpRequiredResponse struct {
	State    string `json:"state"`
	Location string `json:"location"`
}

// FederationStateResponse starts a federated sign-in.
type FederationStateResponse struct {
	State   string `json:"state"`
	AuthURL string `json:"auth_url"`
}

// ============================================================================
// Sessions
// ============================================================================

// SessionResponse is one refresh token as shown to its owner.
type SessionResponse struct {
	TokenID   string    `json:"token_id"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created"`
	Current   bool      `json:"current,omitempty"`
}

// SessionsResponse lists the caller's sessions.
type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// ============================================================================
// MFA
// ============================================================================

// TOTPEnrollResponse carries a new, not yet enabled, authenticator secret.
type TOTPEnrollResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
}

// TOTPCodeRequest carries a code confirming enrollment or removal.
type TOTPCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// MessageResponse is a short human-readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Push
// ============================================================================

// TicketResponse carries a single-use socket ticket. Clients offer it as the
// WebSocket subprotocol when dialling the push endpoint.
type TicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// ============================================================================
// Discovery and health
// ============================================================================

// JWKSResponse is the gateway's public key set.
type JWKSResponse jwtx.JWKS

// HealthChecks are the per-dependency results of a readiness probe.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Broker   string `json:"broker"`
	Provider string `json:"provider,omitempty"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
