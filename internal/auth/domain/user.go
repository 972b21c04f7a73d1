package domain

import "time"

// User is a registered account. MFA fields drive the login state machine:
// a user with MFASecret set but MFAEnabled nil has enrolled an authenticator
// but never confirmed it, so password-only logins still complete.
type User struct {
	ID           string
	Username     string
	PasswordHash string     // argon2id, PHC encoded
	MFASecret    *string    // TOTP shared secret (nullable, base32 encoded)
	MFAEnabled   *time.Time // when MFA was first verified (nullable)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MFARequired reports whether a password login must be followed by a TOTP
// code before tokens are issued. Only flips true after the first successful
// verification, never back.
func (u User) MFARequired() bool {
	return u.MFAEnabled != nil
}

// MFAInitialized reports whether the user has a TOTP secret on record.
func (u User) MFAInitialized() bool {
	return u.MFASecret != nil && *u.MFASecret != ""
}
