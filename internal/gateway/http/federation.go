package http

import (
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/metrics"
	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
)

// FederationHandler drives sign-in through the external identity provider.
type FederationHandler struct {
	AuthService *service.AuthService
	Cookies     CredentialCookies
	StepUpPath  string
	AppURL      string
}

// HandleState handles GET /v1/auth/federation/state
//
//	@Summary		Start a federated sign-in
//	@Description	Issues a single-use state nonce and the provider URL the browser should be sent to.
//	@Tags			Federation
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.FederationStateResponse	"State and provider URL"
//	@Failure		503	{object}	gatewaysdk.ErrorResponse			"Federation not configured or provider unreachable"
//	@Router			/v1/auth/federation/state [get].
func (h *FederationHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	start, err := h.AuthService.StartFederation(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.FederationStateResponse{
		State:   start.Nonce,
		AuthURL: start.AuthURL,
	})
}

// HandleCallback handles GET /v1/auth/federation/callback
//
//	@Summary		Provider redirect target
//	@Description	Consumes the state nonce, exchanges the code with the provider and signs the subject in,
//	@Description	creating an account on first login. Redirects to the application or to the step-up page.
//	@Tags			Federation
//	@Param			state	query	string	true	"Nonce from /v1/auth/federation/state"
//	@Param			code	query	string	true	"Authorization code"
//	@Param			scope	query	string	false	"Granted scopes"
//	@Success		303		"Signed in, or step-up required"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"Missing state or code"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"Code or ID token rejected, or state expired"
//	@Failure		404		{object}	gatewaysdk.ErrorResponse	"Unknown or already used state"
//	@Failure		503		{object}	gatewaysdk.ErrorResponse	"Provider unreachable"
//	@Router			/v1/auth/federation/callback [get].
func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := slogx.FromContext(r.Context())

	if perr := q.Get("error"); perr != "" {
		log.Warn("provider returned an error", "error", perr, "description", q.Get("error_description"))
		writeError(w, r, httpx.ErrInvalidCredential.WithDescription("sign-in was not completed at the provider"))
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, r, httpx.ErrBadRequest.WithDescription("state and code are required"))
		return
	}

	res, err := h.AuthService.CompleteFederation(r.Context(), state, code, httpx.IPKeyExtractor(r))
	if err != nil {
		metrics.RecordSignIn("federated", "failure")
		writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	if res.StepUpState != "" {
		metrics.RecordSignIn("federated", "step_up")
		http.Redirect(w, r, stepUpLocation(h.StepUpPath, res.StepUpState), http.StatusSeeOther)
		return
	}

	metrics.RecordSignIn("federated", "success")
	log.Info("federated sign-in", "sub", res.Credentials.Claims.Subject, "scope", q.Get("scope"))
	h.Cookies.Set(w, *res.Credentials)
	http.Redirect(w, r, h.AppURL, http.StatusSeeOther)
}
