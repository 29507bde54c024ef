package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/infra/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSigningDisabled    = errors.New("token signing is not configured")
)

type AuthProvider interface {
	GetOperator(ctx context.Context, username string) (*domain.Operator, error)
}

// OperatorStore — операторы из конфига. Источник правды — секция auth.operators.
type OperatorStore struct {
	byName map[string]domain.Operator
}

func NewOperatorStore(ops []domain.Operator) *OperatorStore {
	s := &OperatorStore{byName: make(map[string]domain.Operator, len(ops))}
	for _, op := range ops {
		s.byName[op.Username] = op
	}
	return s
}

func (s *OperatorStore) GetOperator(_ context.Context, username string) (*domain.Operator, error) {
	op, ok := s.byName[username]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

type AuthService struct {
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	ttl        time.Duration
	now        func() time.Time
}

// NewAuthService: privateKey может быть nil, тогда выдача токенов выключена.
func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	if s.privateKey == nil {
		return nil, ErrSigningDisabled
	}

	// 1. Аутентификация
	op, err := s.repo.GetOperator(ctx, username)
	if err != nil || op == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Claims: scopes берем из прав оператора
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &domain.CustomClaims{
		UserID: op.Username,
		Scopes: op.ScopeSet(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// 4. Подпись ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// HashPassword — bcrypt-хэш для секции auth.operators.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
