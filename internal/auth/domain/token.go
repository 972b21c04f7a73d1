package domain

import "time"

// TokenPair is what a completed authentication returns: the short-lived
// access token (JWT) and the opaque revocable refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access"`
	RefreshToken string        `json:"refresh"`
	TokenType    string        `json:"token_type,omitempty"` // "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until access expiry
}

// RefreshToken models a stored refresh token record. Only the SHA-256
// fingerprint of the opaque value is persisted; the Revoked flag is the
// server-side revocation registry consulted on every refresh.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 fingerprint
	SessionID string // stable across refresh rotation
	AMR       []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
