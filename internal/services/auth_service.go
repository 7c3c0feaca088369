package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raffleworks/raffle-backend/internal/config"
	"github.com/raffleworks/raffle-backend/internal/repositories"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure authService implements AuthService
var _ AuthService = (*authService)(nil)

// ErrInvalidCredentials is returned for any login failure. The cause
// (unknown email vs bad password) is deliberately not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

type authService struct {
	adminUserRepo repositories.AdminUserRepository
	jwtSecret     string
	jwtExpiresIn  time.Duration
}

// NewAuthService creates a new AuthService implementation
func NewAuthService(adminUserRepo repositories.AdminUserRepository, cfg *config.Config) AuthService {
	return &authService{
		adminUserRepo: adminUserRepo,
		jwtSecret:     cfg.JWT.Secret,
		jwtExpiresIn:  time.Duration(cfg.JWT.ExpiresIn) * time.Second,
	}
}

// Login verifies operator credentials and returns a signed JWT
func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.adminUserRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Warn("Login attempt for unknown operator", "email", email)
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		slog.Warn("Login attempt with wrong password", "email", email)
		return "", ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"sub":   user.ID.Hex(),
		"email": user.Email,
		"role":  user.Role,
		"exp":   time.Now().Add(s.jwtExpiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
