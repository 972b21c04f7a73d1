package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/oxleyworks/gatehouse/pkg/jwtx"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	tokens := newTestTokenService(t, st)
	svc := &AuthService{Store: st, Tokens: tokens}

	user := createTestUser(t, st, "alice", "correct horse battery")

	t.Run("unknown username", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "whatever password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("pre-enrollment login issues tokens and flags setup", func(t *testing.T) {
		res, err := svc.Login(ctx, "alice", "correct horse battery")
		require.NoError(t, err)
		require.False(t, res.MFARequired)
		require.True(t, res.SetupRequired)
		require.Equal(t, user.ID, res.UserID)
		require.NotNil(t, res.Tokens)
		require.NotEmpty(t, res.Tokens.AccessToken)
		require.NotEmpty(t, res.Tokens.RefreshToken)

		claims, err := tokens.KeyManager.Verifier.Verify(res.Tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
	})

	t.Run("enabled MFA defers token issuance", func(t *testing.T) {
		mfa := &MFAService{Store: st, Tokens: tokens, Issuer: testIssuer}
		enrollment, err := mfa.Enroll(ctx, user.ID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(enrollment.Secret, time.Now().UTC())
		require.NoError(t, err)

		res, err := mfa.Verify(ctx, ClaimedUser(user.ID), code)
		require.NoError(t, err)
		require.True(t, res.Verified)

		login, err := svc.Login(ctx, "alice", "correct horse battery")
		require.NoError(t, err)
		require.True(t, login.MFARequired)
		require.False(t, login.SetupRequired)
		require.Equal(t, user.ID, login.UserID)
		require.Nil(t, login.Tokens)
	})
}
