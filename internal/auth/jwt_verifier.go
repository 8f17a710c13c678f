package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"redline/internal/domain"
	"redline/internal/domain/models"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// verifier holds the checks shared by every key source.
type verifier struct {
	keyfunc jwt.Keyfunc
	algs    []string
	logger  *slog.Logger
}

// JWKSVerifier implements JWTVerifier with public keys from a JWKS endpoint.
type JWKSVerifier struct {
	verifier
}

// NewJWTVerifier creates a verifier that fetches public keys from jwksURL.
// The keys are cached and refreshed based on HTTP cache headers.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &JWKSVerifier{verifier{
		keyfunc: jwks.Keyfunc,
		algs:    []string{"RS256", "ES256"},
		logger:  logger,
	}}, nil
}

// Close is a no-op; keyfunc manages its own refresh goroutine lifetime.
func (v *JWKSVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}

// HMACVerifier implements JWTVerifier with a shared secret. Used in local
// development and by tokens minted with IssueToken.
type HMACVerifier struct {
	verifier
}

// NewHMACVerifier creates a verifier for HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, logger *slog.Logger) (JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &HMACVerifier{verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return secret, nil },
		algs:    []string{"HS256"},
		logger:  logger,
	}}, nil
}

// Close releases nothing.
func (v *HMACVerifier) Close() error { return nil }

// VerifyToken validates a token and extracts its claims.
func (v *verifier) VerifyToken(tokenString string) (*models.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, v.keyfunc, jwt.WithValidMethods(v.algs))
	if err != nil {
		v.logger.Debug("token parse failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	// Prevent algorithm confusion attacks
	if !slices.Contains(v.algs, token.Method.Alg()) {
		v.logger.Warn("token uses unexpected algorithm", "algorithm", token.Method.Alg(), "allowed", v.algs)
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok {
		v.logger.Error("failed to extract claims from token")
		return nil, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}
	if claims.TenantID == "" {
		v.logger.Debug("token missing tenant claim", "user_id", claims.Subject)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}
