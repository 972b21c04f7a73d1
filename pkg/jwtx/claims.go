package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Short-lived access tokens, longer-lived refresh tokens.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Authentication Method Reference values recorded in the "amr" claim.
const (
	AMRPassword = "pwd"     // username/password login
	AMROTP      = "otp"     // one-time password (TOTP)
	AMRMFA      = "mfa"     // multiple factors were satisfied
	AMRRefresh  = "refresh" // token minted via refresh grant
)

// Claims are the access-token claims. Additive changes only, to keep older
// tokens parseable.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the session ID, stable across token refreshes.
	SID string `json:"sid,omitempty"`

	// AMR records which authentication methods produced this token, e.g.
	// ["pwd"] for a password-only login or ["pwd","otp","mfa"] after TOTP
	// verification. Useful for requiring MFA on sensitive operations.
	AMR []string `json:"amr,omitempty"`

	// Username of the authenticated user.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an access token.
func NewAccessClaims(
	subject, sid string,
	amr []string,
	ttl time.Duration,
	issuer, username string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:      sid,
		AMR:      amr,
		Username: username,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer matches the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// HasAMR reports whether the given method is present in the AMR claim.
func (c *Claims) HasAMR(method string) bool {
	return slices.Contains(c.AMR, method)
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it becomes valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
