package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxleyworks/gatehouse/internal/auth/service"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/httpx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

type MFAEnrollResponse struct {
	OTPURI string `json:"otp_uri"`
	QRCode string `json:"qr_code"`
}

type MFAVerifyRequest struct {
	OTP    string `json:"otp"`
	UserID string `json:"user_id,omitempty"` // claimed identity mid-login, ignored when a bearer token is present
}

type MFAVerifyResponse struct {
	Verified     bool   `json:"verified"`
	AccessToken  string `json:"access,omitempty"`
	RefreshToken string `json:"refresh,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// MFAHandler handles TOTP enrollment and verification.
type MFAHandler struct {
	MFAService *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/enroll.
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Provisions a TOTP secret for the authenticated user and returns the otpauth URI with a QR code. Repeat calls return the same secret.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	MFAEnrollResponse	"Provisioning URI and QR code"
//	@Failure		401	{object}	map[string]string	"Invalid or missing access token"
//	@Router			/v1/mfa/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// Injected by AuthnMiddleware
	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		httpx.WriteDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	enrollment, err := h.MFAService.Enroll(ctx, userID)
	if err != nil {
		log.Error("failed to enroll TOTP", "user_id", userID, "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The secret travels only inside the URI; clients scan the QR code.
	httpx.WriteJSON(w, http.StatusOK, MFAEnrollResponse{
		OTPURI: enrollment.OTPURI,
		QRCode: enrollment.QRCode,
	})
}

// HandleVerify handles POST /v1/mfa/verify.
//
//	@Summary		Verify a TOTP code
//	@Description	Checks a 6-digit code for the user. Callers mid-login pass user_id in the body and receive tokens on success; authenticated callers get a plain verified flag. The first successful body-identified verification permanently enables MFA.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		MFAVerifyRequest	true	"Code and optional claimed user"
//	@Success		200		{object}	MFAVerifyResponse	"Code accepted"
//	@Failure		400		{object}	MFAVerifyResponse	"Code rejected"
//	@Failure		401		{object}	map[string]string	"No identity provided"
//	@Router			/v1/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse verify request", "err", err)
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// A validated bearer token outranks any user_id in the body.
	var target service.VerifyTarget
	if userID := httpx.UserIDFromContext(ctx); userID != "" {
		target = service.IdentifiedUser(userID)
	} else if req.UserID != "" {
		target = service.ClaimedUser(req.UserID)
	}

	res, err := h.MFAService.Verify(ctx, target, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuthenticationRequired):
			httpx.WriteDetail(w, http.StatusUnauthorized, "Authentication required")
		case errors.Is(err, service.ErrMFANotInitialized):
			httpx.WriteDetail(w, http.StatusBadRequest, "MFA not initialized")
		case errors.Is(err, store.ErrNotFound):
			httpx.WriteDetail(w, http.StatusNotFound, "user not found")
		default:
			log.Error("failed to verify TOTP", "err", err)
			httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if !res.Verified {
		httpx.WriteJSON(w, http.StatusBadRequest, MFAVerifyResponse{Verified: false})
		return
	}

	resp := MFAVerifyResponse{Verified: true}
	if res.Tokens != nil {
		resp.AccessToken = res.Tokens.AccessToken
		resp.RefreshToken = res.Tokens.RefreshToken
		resp.TokenType = res.Tokens.TokenType
		resp.ExpiresIn = int64(res.Tokens.ExpiresIn.Seconds())
		resp.UserID = res.UserID
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
