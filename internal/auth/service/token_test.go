package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/pkg/cryptox"
	"github.com/oxleyworks/gatehouse/pkg/idx"
	"github.com/oxleyworks/gatehouse/pkg/jwtx"
)

func TestIssue(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTestTokenService(t, st)
	user := createTestUser(t, st, "alice", "correct horse battery")

	pair, err := svc.Issue(ctx, user, "", []string{jwtx.AMRPassword})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, svc.AccessTTL, pair.ExpiresIn)

	claims, err := svc.KeyManager.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, testIssuer, claims.Issuer)
	require.NotEmpty(t, claims.SID)

	// The refresh token is persisted by fingerprint, not raw value.
	rt, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(pair.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, user.ID, rt.UserID)
	require.Equal(t, claims.SID, rt.SessionID)
	require.False(t, rt.Revoked)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTestTokenService(t, st)
	user := createTestUser(t, st, "alice", "correct horse battery")

	pair, err := svc.Issue(ctx, user, "", []string{jwtx.AMRPassword})
	require.NoError(t, err)

	t.Run("rotates the refresh token", func(t *testing.T) {
		next, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

		claims, err := svc.KeyManager.Verifier.Verify(next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.True(t, claims.HasAMR(jwtx.AMRPassword))
		require.True(t, claims.HasAMR(jwtx.AMRRefresh))

		// Session carries over.
		orig, err := svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, orig.SID, claims.SID)

		// The presented token is spent.
		_, err = svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidToken)

		pair = next
	})

	t.Run("repeated refresh does not stack AMR values", func(t *testing.T) {
		next, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		claims, err := svc.KeyManager.Verifier.Verify(next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMRRefresh}, claims.AMR)

		pair = next
	})

	t.Run("rejects unknown tokens", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)

		expired := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    user.ID,
			TokenHash: cryptox.FingerprintToken(opaque),
			SessionID: idx.New().String(),
			AMR:       []string{jwtx.AMRPassword},
			ExpiresAt: time.Now().Add(-time.Minute),
		}
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, expired))

		_, err = svc.Refresh(ctx, opaque)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	svc := newTestTokenService(t, st)
	user := createTestUser(t, st, "alice", "correct horse battery")

	pair, err := svc.Issue(ctx, user, "", []string{jwtx.AMRPassword})
	require.NoError(t, err)

	t.Run("revoked token cannot refresh", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

		_, err := svc.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoking twice succeeds", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	})

	t.Run("unknown or empty tokens are invalid", func(t *testing.T) {
		require.ErrorIs(t, svc.Revoke(ctx, "never-issued"), ErrInvalidToken)
		require.ErrorIs(t, svc.Revoke(ctx, ""), ErrInvalidToken)
	})

	t.Run("access token keeps validating after revocation", func(t *testing.T) {
		// Revocation is a refresh-path concern; outstanding access tokens
		// simply age out.
		claims, err := svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
	})
}

func TestHousekeepingPurgesExpired(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	user := createTestUser(t, st, "alice", "correct horse battery")

	live, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	stale, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)

	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(live),
		SessionID: idx.New().String(),
		AMR:       []string{jwtx.AMRPassword},
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(stale),
		SessionID: idx.New().String(),
		AMR:       []string{jwtx.AMRPassword},
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx))

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(live))
	require.NoError(t, err)

	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(stale))
	require.Error(t, err)
}
