package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultServiceTokenTTL is the lifetime of service tokens sent to
// API-backed providers.
const DefaultServiceTokenTTL = 15 * time.Minute

// JWTConfig holds configuration for service token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key (must be at least 32 bytes).
	Secret []byte

	// Issuer is the token issuer (e.g., "quorum").
	Issuer string

	// TokenTTL is the lifetime of service tokens.
	// Defaults to DefaultServiceTokenTTL (15 minutes) if zero.
	TokenTTL time.Duration
}

func (c JWTConfig) ttl() time.Duration {
	if c.TokenTTL == 0 {
		return DefaultServiceTokenTTL
	}
	return c.TokenTTL
}

// GenerateServiceToken creates a signed JWT identifying this engine
// instance to an API-backed provider. The subject is typically the
// provider name the token is minted for.
func GenerateServiceToken(cfg JWTConfig, subject string) (string, error) {
	if len(cfg.Secret) < 32 {
		return "", ErrSecretTooShort
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
		ID:        tokenID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateServiceToken parses and validates a service token.
func ValidateServiceToken(cfg JWTConfig, tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return cfg.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
