package gatewaysdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// SignUp creates a local account. On success the jar holds both credential
// cookies.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*SignInResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signup", req)
	if err != nil {
		return nil, err
	}

	var out SignInResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignIn authenticates with a password. Accounts with TOTP enabled yield a
// *StepUpRequiredError.
func (c *Client) SignIn(ctx context.Context, username, password string) (*SignInResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signin", SignInRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusSeeOther {
		defer resp.Body.Close()
		var su StepUpRequiredResponse
		body, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(body, &su)
		if su.Location == "" {
			su.Location = resp.Header.Get("Location")
		}
		return nil, &StepUpRequiredError{State: su.State, Location: su.Location}
	}

	var out SignInResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteStepUp submits the TOTP code for a pending sign-in.
func (c *Client) CompleteStepUp(ctx context.Context, state, code string) (*SignInResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/2fa", StepUpRequest{State: state, Code: code})
	if err != nil {
		return nil, err
	}

	var out SignInResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartFederation asks the gateway for a federation nonce and the provider
// URL to send the browser to.
func (c *Client) StartFederation(ctx context.Context) (*FederationStateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/auth/federation/state", nil)
	if err != nil {
		return nil, err
	}

	var out FederationStateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh mints a new jwt cookie from the refresh_token cookie.
func (c *Client) Refresh(ctx context.Context) (*SignInResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", nil)
	if err != nil {
		return nil, err
	}

	var out SignInResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the current session and clears both cookies.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusNoContent)
}
