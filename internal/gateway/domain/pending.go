package domain

import "time"

// PendingFederation is the single-use nonce issued before redirecting to the
// identity provider.
type PendingFederation struct {
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"created"`
}

// PendingStepUp is held between first-factor success and the TOTP code.
type PendingStepUp struct {
	State        string    `json:"state"`
	Subject      string    `json:"subject"`
	PendingToken string    `json:"pending_token"` // signed claim released on success
	Secret       string    `json:"secret"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created"`
}

// SocketTicket authorizes one push socket handshake.
type SocketTicket struct {
	Ticket    string    `json:"ticket"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created"`
}
