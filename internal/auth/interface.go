package auth

import "engram/internal/domain/models"

// JWTVerifier validates bearer tokens for the auth middleware. The
// middleware stays agnostic to where keys come from; the JWKS-backed
// implementation lives in this package.
type JWTVerifier interface {
	// VerifyToken parses and validates a token string, returning its
	// claims or an error for invalid, expired, or mis-signed tokens.
	VerifyToken(tokenString string) (*models.AuthClaims, error)

	// Close releases resources held by the verifier, such as the
	// background JWKS refresh.
	Close() error
}
