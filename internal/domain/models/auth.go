package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claim set accepted by the API.
// Every request is scoped to the tenant named in tenant_id.
type Claims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	TenantID             string `json:"tenant_id"`
	Role                 string `json:"role"` // "agent", "editor" or "admin"
}

// GetUserID returns the caller identity from the subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}

// GetTenantID returns the tenant every request is scoped to.
func (c *Claims) GetTenantID() string {
	return c.TenantID
}
