package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/oxleyworks/gatehouse/pkg/jwtx"
)

func newTestMFAService(t *testing.T) (*MFAService, *TokenService) {
	t.Helper()
	st := newTestStore(t)
	tokens := newTestTokenService(t, st)
	return &MFAService{Store: st, Tokens: tokens, Issuer: testIssuer}, tokens
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestMFAService(t)
	user := createTestUser(t, svc.Store, "alice", "correct horse battery")

	t.Run("provisions secret with URI and QR", func(t *testing.T) {
		enrollment, err := svc.Enroll(ctx, user.ID)
		require.NoError(t, err)
		require.NotEmpty(t, enrollment.Secret)
		require.True(t, strings.HasPrefix(enrollment.OTPURI, "otpauth://totp/"))
		require.Contains(t, enrollment.OTPURI, "secret="+enrollment.Secret)
		require.Contains(t, enrollment.OTPURI, "issuer="+testIssuer)
		require.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))

		stored, err := svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, stored.MFAInitialized())
		require.Equal(t, enrollment.Secret, *stored.MFASecret)
		// Enrollment alone never enables MFA.
		require.False(t, stored.MFARequired())
	})

	t.Run("repeat enrollment returns the same secret", func(t *testing.T) {
		first, err := svc.Enroll(ctx, user.ID)
		require.NoError(t, err)

		second, err := svc.Enroll(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, first.Secret, second.Secret)
		require.Equal(t, first.OTPURI, second.OTPURI)
	})

	t.Run("survives MFA being enabled", func(t *testing.T) {
		require.NoError(t, svc.Store.Users().EnableMFA(ctx, user.ID))

		enrollment, err := svc.Enroll(ctx, user.ID)
		require.NoError(t, err)
		require.NotEmpty(t, enrollment.Secret)
	})
}

func TestVerifyClaimedUser(t *testing.T) {
	ctx := context.Background()

	svc, tokens := newTestMFAService(t)
	user := createTestUser(t, svc.Store, "alice", "correct horse battery")

	t.Run("uninitialized user cannot verify", func(t *testing.T) {
		_, err := svc.Verify(ctx, ClaimedUser(user.ID), "000000")
		require.ErrorIs(t, err, ErrMFANotInitialized)
	})

	enrollment, err := svc.Enroll(ctx, user.ID)
	require.NoError(t, err)

	t.Run("wrong code reports unverified without enabling", func(t *testing.T) {
		res, err := svc.Verify(ctx, ClaimedUser(user.ID), "000000")
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Nil(t, res.Tokens)

		stored, err := svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, stored.MFARequired())
	})

	t.Run("valid code enables MFA and issues tokens", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		res, err := svc.Verify(ctx, ClaimedUser(user.ID), code)
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Equal(t, user.ID, res.UserID)
		require.NotNil(t, res.Tokens)

		claims, err := tokens.KeyManager.Verifier.Verify(res.Tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.True(t, claims.HasAMR(jwtx.AMRMFA))
		require.True(t, claims.HasAMR(jwtx.AMROTP))

		stored, err := svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, stored.MFARequired())
	})

	t.Run("enable is permanent across later failures", func(t *testing.T) {
		stored, err := svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		enabledAt := *stored.MFAEnabled

		res, err := svc.Verify(ctx, ClaimedUser(user.ID), "000000")
		require.NoError(t, err)
		require.False(t, res.Verified)

		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)
		res, err = svc.Verify(ctx, ClaimedUser(user.ID), code)
		require.NoError(t, err)
		require.True(t, res.Verified)

		stored, err = svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, stored.MFARequired())
		require.Equal(t, enabledAt, *stored.MFAEnabled)
	})
}

func TestVerifyIdentifiedUser(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestMFAService(t)
	user := createTestUser(t, svc.Store, "alice", "correct horse battery")

	enrollment, err := svc.Enroll(ctx, user.ID)
	require.NoError(t, err)

	t.Run("valid code verifies without issuing tokens", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		res, err := svc.Verify(ctx, IdentifiedUser(user.ID), code)
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Nil(t, res.Tokens)
	})

	t.Run("identified check never enables MFA", func(t *testing.T) {
		stored, err := svc.Store.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, stored.MFARequired())
	})

	t.Run("wrong code reports unverified", func(t *testing.T) {
		res, err := svc.Verify(ctx, IdentifiedUser(user.ID), "123456")
		require.NoError(t, err)
		require.False(t, res.Verified)
	})

	t.Run("missing identity is rejected", func(t *testing.T) {
		_, err := svc.Verify(ctx, VerifyTarget{}, "123456")
		require.ErrorIs(t, err, ErrAuthenticationRequired)
	})
}

func TestVerifyAcceptsAdjacentStep(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestMFAService(t)
	user := createTestUser(t, svc.Store, "alice", "correct horse battery")

	enrollment, err := svc.Enroll(ctx, user.ID)
	require.NoError(t, err)

	// A code from the previous 30s step is still inside the skew window.
	code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC().Add(-30*time.Second))
	require.NoError(t, err)

	res, err := svc.Verify(ctx, IdentifiedUser(user.ID), code)
	require.NoError(t, err)
	require.True(t, res.Verified)

	// Two steps back is outside the window.
	stale, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC().Add(-90*time.Second))
	require.NoError(t, err)

	res, err = svc.Verify(ctx, IdentifiedUser(user.ID), stale)
	require.NoError(t, err)
	require.False(t, res.Verified)
}
