package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gateway/internal/gateway/service"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	"github.com/aussiebroadwan/gateway/pkg/httpx"
	"github.com/aussiebroadwan/gateway/pkg/slogx"
	"github.com/aussiebroadwan/gateway/pkg/validatex"
)

// MFAHandler handles the TOTP enrollment lifecycle.
type MFAHandler struct {
	MFAService *service.MFAService
	Validate   *validatex.Validator
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Generates a TOTP secret for the caller. Step-up is not required until the secret is verified.
//	@Tags			MFA
//	@Security		CookieAuth
//	@Produce		json
//	@Success		200	{object}	gatewaysdk.TOTPEnrollResponse	"TOTP secret and otpauth URI"
//	@Failure		401	{object}	gatewaysdk.ErrorResponse		"Not signed in"
//	@Failure		409	{object}	gatewaysdk.ErrorResponse		"MFA already enabled"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID := httpx.SubjectFromContext(r.Context())

	enrollment, err := h.MFAService.EnrollTOTP(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.TOTPEnrollResponse{
		Secret: enrollment.Secret,
		URI:    enrollment.URI,
	})
}

// HandleVerify handles POST /v1/mfa/totp/verify
//
//	@Summary		Verify TOTP code and enable MFA
//	@Tags			MFA
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.TOTPCodeRequest	true	"TOTP code"
//	@Success		200		{object}	gatewaysdk.MessageResponse	"MFA enabled"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"Invalid code or nothing enrolled"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Failure		409		{object}	gatewaysdk.ErrorResponse	"MFA already enabled"
//	@Router			/v1/mfa/totp/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID := httpx.SubjectFromContext(r.Context())

	var req gatewaysdk.TOTPCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.MFAService.VerifyTOTP(r.Context(), userID, req.Code); err != nil {
		writeMFAError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("MFA enabled")
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.MessageResponse{Message: "MFA enabled"})
}

// HandleRemove handles DELETE /v1/mfa/totp
//
//	@Summary		Remove TOTP MFA
//	@Tags			MFA
//	@Security		CookieAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatewaysdk.TOTPCodeRequest	true	"Current TOTP code"
//	@Success		200		{object}	gatewaysdk.MessageResponse	"MFA removed"
//	@Failure		400		{object}	gatewaysdk.ErrorResponse	"Invalid code or MFA not enabled"
//	@Failure		401		{object}	gatewaysdk.ErrorResponse	"Not signed in"
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID := httpx.SubjectFromContext(r.Context())

	var req gatewaysdk.TOTPCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.MFAService.DisableTOTP(r.Context(), userID, req.Code); err != nil {
		writeMFAError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("MFA removed")
	httpx.WriteJSON(w, http.StatusOK, gatewaysdk.MessageResponse{Message: "MFA removed"})
}

func (h *MFAHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		writeError(w, r, err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeError(w, r, httpx.ErrBadRequest.WithDescription(err.Error()))
		return false
	}
	return true
}

// writeMFAError reports a wrong code as a bad request: the caller is
// already authenticated, so this is not a credential failure.
func writeMFAError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrInvalidTOTPCode) {
		writeError(w, r, httpx.ErrBadRequest.WithDescription("invalid TOTP code"))
		return
	}
	writeError(w, r, err)
}
