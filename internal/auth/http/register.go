package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxleyworks/gatehouse/internal/auth/service"
	"github.com/oxleyworks/gatehouse/pkg/httpx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Detail string `json:"detail"`
}

// RegisterHandler handles POST /v1/auth/register.
type RegisterHandler struct {
	AccountService *service.AccountService
}

// ServeHTTP creates a new account.
//
//	@Summary		Register a new user
//	@Description	Creates an account from a username and password. The password is hashed before storage.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RegisterRequest		true	"Credentials"
//	@Success		201		{object}	RegisterResponse	"Account created"
//	@Failure		400		{object}	map[string][]string	"Per-field validation errors"
//	@Router			/v1/auth/register [post].
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse register request", "err", err)
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if _, err := h.AccountService.Register(ctx, req.Username, req.Password); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			httpx.WriteJSON(w, http.StatusBadRequest, verr.Fields)
			return
		}
		log.Error("failed to register user", "err", err)
		httpx.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, RegisterResponse{Detail: "registered"})
}
