package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/service"
	"github.com/oxleyworks/gatehouse/pkg/httpx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the success body for a password login. Either the
// token fields are set (MFA not enabled yet) or MFARequired is true and
// only UserID is populated.
type LoginResponse struct {
	AccessToken   string `json:"access,omitempty"`
	RefreshToken  string `json:"refresh,omitempty"`
	TokenType     string `json:"token_type,omitempty"`
	ExpiresIn     int64  `json:"expires_in,omitempty"`
	MFARequired   bool   `json:"mfa_required"`
	SetupRequired bool   `json:"setup_required,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

func tokenFields(resp *LoginResponse, pair *domain.TokenPair) {
	resp.AccessToken = pair.AccessToken
	resp.RefreshToken = pair.RefreshToken
	resp.TokenType = pair.TokenType
	resp.ExpiresIn = int64(pair.ExpiresIn.Seconds())
}

// LoginHandler handles POST /v1/auth/login.
type LoginHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP verifies a username/password pair.
//
//	@Summary		Password login
//	@Description	Verifies credentials. Accounts with MFA enabled receive a deferred response and must complete OTP verification; accounts without MFA receive tokens immediately, flagged setup_required.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	LoginResponse	"Tokens or MFA challenge"
//	@Failure		401		{object}	map[string]string	"Invalid credentials"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse login request", "err", err)
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := h.AuthService.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteDetail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Error("login failed", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if res.MFARequired {
		httpx.WriteJSON(w, http.StatusOK, LoginResponse{
			MFARequired: true,
			UserID:      res.UserID,
		})
		return
	}

	resp := LoginResponse{
		MFARequired:   false,
		SetupRequired: res.SetupRequired,
		UserID:        res.UserID,
	}
	tokenFields(&resp, res.Tokens)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
