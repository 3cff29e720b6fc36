package gatewaysdk

import (
	"context"
	"net/http"
	"net/url"
)

// ListSessions returns the caller's refresh tokens.
func (c *Client) ListSessions(ctx context.Context) ([]SessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/sessions", nil)
	if err != nil {
		return nil, err
	}

	var out SessionsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession deletes one of the caller's sessions.
func (c *Client) RevokeSession(ctx context.Context, tokenID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(tokenID), nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusNoContent)
}

// EnrollTOTP starts authenticator enrollment.
func (c *Client) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp/enroll", nil)
	if err != nil {
		return nil, err
	}

	var out TOTPEnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTOTP confirms enrollment and enables step-up for the account.
func (c *Client) VerifyTOTP(ctx context.Context, code string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp/verify", TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// DisableTOTP removes the authenticator.
func (c *Client) DisableTOTP(ctx context.Context, code string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/mfa/totp", TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// IssueTicket requests a single-use push socket ticket.
func (c *Client) IssueTicket(ctx context.Context) (*TicketResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/push/ticket", nil)
	if err != nil {
		return nil, err
	}

	var out TicketResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Worker calls a proxied worker route and returns the worker's raw body.
// body may be nil.
func (c *Client) Worker(ctx context.Context, method, path string, body any) (int, []byte, error) {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return 0, nil, err
	}
	return readRaw(resp)
}
