package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeWorkflowStart — право запуска транзакции через Console API.
const ScopeWorkflowStart = "workflow:start"

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "workflow:start": true
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — оператор консоли. Хранится в конфиге, пароль только в виде bcrypt-хэша.
type Operator struct {
	Username     string   `mapstructure:"username" json:"username"`
	PasswordHash string   `mapstructure:"password_hash" json:"-"` // Никогда не отправляем на фронт
	Scopes       []string `mapstructure:"scopes" json:"scopes"`
}

func (o Operator) ScopeSet() map[string]bool {
	out := make(map[string]bool, len(o.Scopes))
	for _, s := range o.Scopes {
		out[s] = true
	}
	return out
}
