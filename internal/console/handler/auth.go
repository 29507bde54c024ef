package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/console/service"
	"github.com/xela07ax/nexusflow/internal/domain"
)

type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(s *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: s, logger: logger}
}

// Login — POST /auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrSigningDisabled):
		writeError(w, http.StatusServiceUnavailable, "token issuing is disabled")
		return
	case err != nil:
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		h.logger.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
