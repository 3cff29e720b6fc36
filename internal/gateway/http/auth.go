package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/gateway/internal/gateway/metrics"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/aussiebroadwan/gateway/pkg/validatex"
)

// AuthHandler serves local sign-up, sign-in, step-up, refresh and logout.
type AuthHandler struct {
	AuthService *service.AuthService
	Validate    *validatex.Validator
	Cookies     CredentialCookies
	StepUpPath  string
}

// HandleSignUp handles POST /v1/auth/signup
//
//	@Summary		Create a local account
//	@Description	Reserves the username, asks the profile worker to create the profile and signs the new account in.
//	@Description	If the worker rejects the profile the reservation is rolled back and the worker's reply is returned.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.SignUpRequest	true	"Account details"
//	@Success		201		{object}	gatewaysdk.SignInResponse	"Signed in; jwt and refresh_token cookies set"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"Invalid request"
//	@Failure		409		{object}	gatewaysdk.ErrorResponse	"Username taken"
//	@Failure		503		{object}	gatewaysdk.ErrorResponse	"Broker unavailable"
//	@Failure		504		{object}	gatewaysdk.ErrorResponse	"Profile worker did not reply"
//	@Router			/v1/auth/signup [post].
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.SignUpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, httpx.ErrBadRequest.WithDescription(err.Error()))
		return
	}

	creds, err := h.AuthService.SignUp(r.Context(), service.SignUpInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, httpx.IPKeyExtractor(r))
	if err != nil {
		metrics.RecordSignIn("signup", "failure")
		writeError(w, r, err)
		return
	}

	metrics.RecordSignIn("signup", "success")
	slogx.FromContext(r.Context()).Info("account created", "sub", creds.Claims.Subject)
	h.Cookies.Set(w, creds)
	httpx.WriteJSON(w, http.StatusCreated, signInResponse(creds))
}

// HandleSignIn handles POST /v1/auth/signin
//
//	@Summary		Sign in with a password
//	@Description	On success sets the jwt and refresh_token cookies. Accounts with TOTP enabled are
//	@Description	redirected to the step-up page with a pending state instead.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.SignInRequest			true	"Credentials"
//	@Success		200		{object}	gatewaysdk.SignInResponse			"Signed in"
//	@Success		303		{object}	gatewaysdk.StepUpRequiredResponse	"Step-up code required"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse			"Invalid request"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse			"Wrong username or password"
//	@Failure		429		{object}	gatewaysdk.ErrorResponse			"Too many attempts"
//	@Router			/v1/auth/signin [post].
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.SignInRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, httpx.ErrBadRequest.WithDescription(err.Error()))
		return
	}

	res, err := h.AuthService.SignIn(r.Context(), req.Username, req.Password, httpx.IPKeyExtractor(r))
	if err != nil {
		metrics.RecordSignIn("password", "failure")
		writeError(w, r, err)
		return
	}
	writeSignInResult(w, h.Cookies, h.StepUpPath, "password", res)
}

// HandleStepUp handles POST /v1/auth/2fa
//
//	@Summary		Complete a pending sign-in
//	@Description	Checks a 6-digit TOTP code against a pending state. A wrong code leaves the state usable
//	@Description	until its lifetime ends or the attempt cap is reached.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.StepUpRequest	true	"State and code"
//	@Success		200		{object}	gatewaysdk.SignInResponse	"Signed in"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"Invalid request"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"Wrong code or state expired"
//	@Failure		404		{object}	gatewaysdk.ErrorResponse	"Unknown state"
//	@Router			/v1/auth/2fa [post].
func (h *AuthHandler) HandleStepUp(w http.ResponseWriter, r *http.Request) {
	var req gatewaysdk.StepUpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, httpx.ErrBadRequest.WithDescription(err.Error()))
		return
	}

	creds, err := h.AuthService.CompleteStepUp(r.Context(), req.State, req.Code, httpx.IPKeyExtractor(r))
	if err != nil {
		metrics.RecordSignIn("totp", "failure")
		writeError(w, r, err)
		return
	}

	metrics.RecordSignIn("totp", "success")
	h.Cookies.Set(w, creds)
	httpx.WriteJSON(w, http.StatusOK, signInResponse(creds))
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate the jwt cookie
//	@Description	Mints a new claim from the refresh_token cookie. The refresh token itself is unchanged.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.SignInResponse	"New jwt cookie set"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse	"Missing, revoked or expired refresh token"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	refresh := cookieValue(r, httpx.CookieRefreshToken)
	if refresh == "" {
		writeError(w, r, service.ErrUnauthenticated)
		return
	}

	creds, err := h.AuthService.Refresh(r.Context(), refresh)
	if err != nil {
		metrics.RecordRefresh("failure")
		if !errors.Is(err, service.ErrUnauthenticated) {
			h.Cookies.Clear(w)
		}
		writeError(w, r, err)
		return
	}

	metrics.RecordRefresh("success")
	h.Cookies.SetJWT(w, creds)
	httpx.WriteJSON(w, http.StatusOK, signInResponse(creds))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Sign out
//	@Description	Revokes the session behind the refresh_token cookie and clears both cookies.
//	@Tags			Auth
//	@Security		CookieAuth
//	@Success		204	"Signed out"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Failure		404	{object}	gatewaysdk.ErrorResponse	"No session for this refresh token; cookies cleared anyway"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	subject := httpx.SubjectFromContext(r.Context())

	err := h.AuthService.Logout(r.Context(), subject, cookieValue(r, httpx.CookieRefreshToken))

	h.Cookies.Clear(w)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("signed out")
	w.WriteHeader(http.StatusNoContent)
}

// writeSignInResult sets cookies for a completed sign-in or redirects to the
// step-up page for a pending one.
func writeSignInResult(w http.ResponseWriter, cookies CredentialCookies, stepUpPath, method string, res service.SignInResult) {
	if res.StepUpState != "" {
		metrics.RecordSignIn(method, "step_up")
		location := stepUpLocation(stepUpPath, res.StepUpState)
		w.Header().Set("Location", location)
		httpx.WriteJSON(w, http.StatusSeeOther, gatewaysdk.StepUpRequiredResponse{
			State:    res.StepUpState,
			Location: location,
		})
		return
	}

	metrics.RecordSignIn(method, "success")
	cookies.Set(w, *res.Credentials)
	httpx.WriteJSON(w, http.StatusOK, signInResponse(*res.Credentials))
}

func stepUpLocation(path, state string) string {
	return path + "?" + url.Values{"state": {state}}.Encode()
}

func signInResponse(creds service.Credentials) gatewaysdk.SignInResponse {
	return gatewaysdk.SignInResponse{
		Subject:   creds.Claims.Subject,
		Name:      creds.Claims.Name,
		ExpiresAt: creds.Claims.ExpiresAtTime(),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
