package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors.
var (
	ErrInvalidToken        = errors.New("invalid upload token")
	ErrExpiredToken        = errors.New("upload token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign upload token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
)

// TokenConfig holds configuration for upload token generation.
type TokenConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "chunkflow".
	Issuer string

	// TokenDuration is the upload token lifetime. An interrupted upload
	// must resume within this window. Default: 24 hours.
	TokenDuration time.Duration
}

// uploadClaims binds a token to one upload session.
type uploadClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sessionId"`
}

// TokenService issues and validates upload tokens. The token carries
// the session ID; everything else about the session lives in the
// manifest store.
type TokenService struct {
	config TokenConfig
}

// NewTokenService creates a token service with the given configuration.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "chunkflow"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &TokenService{config: config}, nil
}

// Issue creates a signed upload token for a session.
func (s *TokenService) Issue(sessionID string) (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(s.config.TokenDuration)

	claims := &uploadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, ErrTokenSigningFailed
	}
	return signed, expiresAt, nil
}

// Validate checks a token and returns the session ID it is bound to.
func (s *TokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &uploadClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*uploadClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", ErrInvalidToken
	}
	return claims.SessionID, nil
}
