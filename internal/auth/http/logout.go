package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxleyworks/gatehouse/internal/auth/service"
	"github.com/oxleyworks/gatehouse/pkg/httpx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutHandler handles POST /v1/auth/logout.
type LogoutHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP revokes the presented refresh token, ending the session.
// The access token is untouched and simply expires.
//
//	@Summary		Logout
//	@Description	Revokes the refresh token so it can never be exchanged again. Revoking an already-revoked token succeeds, as does a logout with no token at all.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LogoutRequest		true	"Refresh token to revoke"
//	@Success		200		{object}	map[string]string	"Logged out"
//	@Failure		400		{object}	map[string]string	"Missing or unknown refresh token"
//	@Failure		401		{object}	map[string]string	"Invalid or missing access token"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse logout request", "err", err)
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// No token supplied means nothing to revoke; the logout still succeeds.
	if req.RefreshToken == "" {
		httpx.WriteDetail(w, http.StatusOK, "Successfully logged out")
		return
	}

	if err := h.TokenService.Revoke(ctx, req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			httpx.WriteDetail(w, http.StatusBadRequest, "Invalid token")
			return
		}
		log.Error("failed to revoke refresh token", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteDetail(w, http.StatusOK, "Successfully logged out")
}
