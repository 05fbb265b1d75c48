package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminSubject = "admin"
	tokenIssuer  = "chickiemart-api"
)

// AdminClaims are carried by dashboard tokens
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService gates the admin dashboard behind a single shared password
type AuthService struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
	logger       logger.Logger
}

// NewAuthService hashes the configured password; the plain text is not kept
func NewAuthService(password, secret string, ttl time.Duration, logger logger.Logger) (*AuthService, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &AuthService{
		passwordHash: hash,
		secret:       []byte(secret),
		ttl:          ttl,
		now:          time.Now,
		logger:       logger,
	}, nil
}

// Login checks the password and issues a signed token
func (s *AuthService) Login(password string) (string, time.Time, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		s.logger.Warn("Admin login rejected")
		return "", time.Time{}, apperrors.NewUnauthorizedError("Invalid password")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &AdminClaims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)

	if err != nil {
		s.logger.Error("Failed to sign admin token", "error", err)
		return "", time.Time{}, apperrors.NewInternalError("Failed to sign in")
	}

	s.logger.Info("Admin logged in", "tokenID", claims.ID, "expiresAt", expiresAt)
	return token, expiresAt, nil
}

// ValidateToken verifies signature, issuer and expiry of a dashboard token
func (s *AuthService) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&AdminClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		return nil, apperrors.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(*AdminClaims)

	if !ok || !token.Valid || claims.Role != adminSubject {
		return nil, apperrors.NewUnauthorizedError("Invalid or expired token")
	}

	return claims, nil
}
