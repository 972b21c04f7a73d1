package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxleyworks/gatehouse/internal/auth/service"
	"github.com/oxleyworks/gatehouse/pkg/httpx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

type RefreshRequest struct {
	RefreshToken string `json:"refresh"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshHandler handles POST /v1/auth/refresh.
type RefreshHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP exchanges a refresh token for a rotated token pair.
//
//	@Summary		Refresh tokens
//	@Description	Exchanges a valid refresh token for a new access token and a replacement refresh token. The presented token is revoked in the same transaction.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest		true	"Refresh token"
//	@Success		200		{object}	RefreshResponse		"Rotated token pair"
//	@Failure		401		{object}	map[string]string	"Invalid, expired, or revoked refresh token"
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse refresh request", "err", err)
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			httpx.WriteDetail(w, http.StatusUnauthorized, "invalid token")
			return
		}
		log.Error("failed to refresh tokens", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}
