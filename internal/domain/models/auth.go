package models

import "github.com/golang-jwt/jwt/v5"

// AuthClaims is the JWT claims structure the auth collaborator issues.
// The core only consumes the verified subject as user_id.
type AuthClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"` // "authenticated" or "anon"
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *AuthClaims) GetUserID() string {
	return c.Subject
}
