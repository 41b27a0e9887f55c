// Package auth issues and validates the bearer tokens that protect the
// administrative credential API.
package auth

import (
	"context"
	"time"
)

// RoleAdmin is the only role the API recognizes.
const RoleAdmin = "admin"

// TokenService defines operations for managing admin bearer tokens.
type TokenService interface {
	// GenerateToken creates a signed admin token for subject.
	GenerateToken(ctx context.Context, subject string) (string, time.Time, error)

	// ValidateToken validates the token string and returns its claims.
	// Tokens without the admin role are rejected with ErrInsufficientRole.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of an admin token.
type Claims struct {
	Role      string    `json:"role"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
