package service

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/jwtx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

const (
	totpPeriod    = 30 // seconds per TOTP step
	totpSkewSteps = 1  // accepted steps either side of now
	totpQRSize    = 256
)

var (
	ErrMFANotInitialized      = errors.New("mfa_not_initialized")
	ErrAuthenticationRequired = errors.New("authentication_required")
)

// VerifyTarget identifies whose OTP code is being checked and how that
// identity was established. An identified target comes from a validated
// access token; a claimed target is a bare user ID asserted by the
// caller mid-login, before any token exists.
type VerifyTarget struct {
	userID        string
	authenticated bool
}

// IdentifiedUser targets a user proven by a bearer token.
func IdentifiedUser(userID string) VerifyTarget {
	return VerifyTarget{userID: userID, authenticated: true}
}

// ClaimedUser targets a user asserted by the request body during the
// login handshake.
func ClaimedUser(userID string) VerifyTarget {
	return VerifyTarget{userID: userID, authenticated: false}
}

func (t VerifyTarget) IsZero() bool { return t.userID == "" }

// VerifyResult reports the outcome of an OTP check. Tokens is only set
// for claimed targets whose code was valid.
type VerifyResult struct {
	Verified bool
	UserID   string
	Tokens   *domain.TokenPair
}

// MFAService owns TOTP enrollment and verification.
type MFAService struct {
	Store  store.Store
	Tokens *TokenService
	Issuer string // Issuer name shown in authenticator apps
}

// Enroll provisions a TOTP secret for the user and returns the otpauth
// URI plus a QR code rendering of it. Enrollment is idempotent: once a
// secret exists it is returned unchanged on every subsequent call, even
// under concurrent requests, so a user scanning the QR twice never ends
// up with two competing secrets.
func (s *MFAService) Enroll(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	secret := ""
	if u.MFAInitialized() {
		secret = *u.MFASecret
	} else {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.Issuer,
			AccountName: u.Username,
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return domain.MFAEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
		}

		set, err := s.Store.Users().SetMFASecretIfEmpty(ctx, userID, key.Secret())
		if err != nil {
			return domain.MFAEnrollment{}, fmt.Errorf("failed to store MFA secret: %w", err)
		}
		if set {
			secret = key.Secret()
			l.Info("TOTP secret enrolled", slog.String("user_id", userID))
		} else {
			// Lost a race with a concurrent enrollment; serve the winner's secret.
			u, err = s.Store.Users().GetUserByID(ctx, userID)
			if err != nil {
				return domain.MFAEnrollment{}, err
			}
			if !u.MFAInitialized() {
				return domain.MFAEnrollment{}, ErrMFANotInitialized
			}
			secret = *u.MFASecret
		}
	}

	key, err := s.keyForSecret(secret, u.Username)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	qr, err := renderQRDataURI(key)
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	return domain.MFAEnrollment{
		Secret: secret,
		OTPURI: key.URL(),
		QRCode: qr,
	}, nil
}

// Verify checks a TOTP code for the target user. Codes from the current
// step and one step either side are accepted.
//
// For a claimed target a valid code permanently enables MFA on the
// account and issues a full token pair. For an identified target the
// check is a pure yes/no with no state change. A wrong code is not an
// error: it reports Verified false.
func (s *MFAService) Verify(ctx context.Context, target VerifyTarget, code string) (VerifyResult, error) {
	l := slogx.FromContext(ctx)

	if target.IsZero() {
		return VerifyResult{}, ErrAuthenticationRequired
	}

	u, err := s.Store.Users().GetUserByID(ctx, target.userID)
	if err != nil {
		return VerifyResult{}, err
	}

	if !u.MFAInitialized() {
		return VerifyResult{}, ErrMFANotInitialized
	}

	valid, err := totp.ValidateCustom(code, *u.MFASecret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return VerifyResult{}, err
	}
	if !valid {
		l.Info("TOTP verification failed", slog.String("user_id", u.ID))
		return VerifyResult{Verified: false, UserID: u.ID}, nil
	}

	if target.authenticated {
		return VerifyResult{Verified: true, UserID: u.ID}, nil
	}

	// First successful verification flips the account to MFA-required.
	// The guard in the store makes the transition one-way, so a replayed
	// verify never clears or resets the enabled timestamp.
	if err := s.Store.Users().EnableMFA(ctx, u.ID); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to enable MFA: %w", err)
	}

	tokens, err := s.Tokens.Issue(ctx, u, "", []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA})
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{Verified: true, UserID: u.ID, Tokens: tokens}, nil
}

// keyForSecret rebuilds the provisioning key for an already-stored
// base32 secret so the URI and QR stay stable across enroll calls.
func (s *MFAService) keyForSecret(secret, accountName string) (*otp.Key, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("stored MFA secret is not valid base32: %w", err)
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
}

func renderQRDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(totpQRSize, totpQRSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
