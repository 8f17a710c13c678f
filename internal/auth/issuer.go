package auth

import (
	"errors"
	"fmt"
	"time"

	"redline/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

// IssueToken mints an HS256 token for tenantID. It is used by the seed
// command and tests; production tokens come from the identity provider.
func IssueToken(secret []byte, tenantID, subject, role string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("JWT secret cannot be empty")
	}
	now := time.Now()
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Role:     role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
