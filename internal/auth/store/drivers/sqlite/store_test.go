package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newUser(username string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: "$argon2id$stub",
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	u := newUser("alice")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	t.Run("duplicate username", func(t *testing.T) {
		dup := newUser("alice")
		err := st.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("lookup round trip", func(t *testing.T) {
		byID, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)
		require.Nil(t, byID.MFASecret)
		require.Nil(t, byID.MFAEnabled)

		byName, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, byName.ID)

		_, err = st.Users().GetUserByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SetMFASecretIfEmpty only writes once", func(t *testing.T) {
		set, err := st.Users().SetMFASecretIfEmpty(ctx, u.ID, "FIRSTSECRET")
		require.NoError(t, err)
		require.True(t, set)

		set, err = st.Users().SetMFASecretIfEmpty(ctx, u.ID, "SECONDSECRET")
		require.NoError(t, err)
		require.False(t, set)

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "FIRSTSECRET", *got.MFASecret)
	})

	t.Run("EnableMFA transitions once", func(t *testing.T) {
		require.NoError(t, st.Users().EnableMFA(ctx, u.ID))

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.MFAEnabled)
		first := *got.MFAEnabled

		// Second call leaves the original timestamp alone.
		require.NoError(t, st.Users().EnableMFA(ctx, u.ID))
		got, err = st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, first, *got.MFAEnabled)
	})
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	u := newUser("alice")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "hash-1",
		SessionID: idx.New().String(),
		AMR:       []string{"pwd", "otp"},
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, rt))

	t.Run("lookup by hash", func(t *testing.T) {
		got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.Equal(t, rt.UserID, got.UserID)
		require.Equal(t, rt.SessionID, got.SessionID)
		require.Equal(t, []string{"pwd", "otp"}, got.AMR)
		require.False(t, got.Revoked)

		_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "no-such-hash")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-1"))

		got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.True(t, got.Revoked)

		// Idempotent on known hashes, ErrNotFound on unknown ones.
		require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-1"))
		require.ErrorIs(t, st.RefreshTokens().RevokeRefreshToken(ctx, "no-such-hash"), store.ErrNotFound)
	})

	t.Run("rotation in a transaction", func(t *testing.T) {
		next := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: "hash-2",
			SessionID: rt.SessionID,
			AMR:       []string{"pwd", "refresh"},
			ExpiresAt: time.Now().Add(time.Hour).UTC(),
		}
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.RefreshTokens().RevokeRefreshToken(ctx, "hash-1"); err != nil {
				return err
			}
			return tx.RefreshTokens().CreateRefreshToken(ctx, next)
		})
		require.NoError(t, err)

		got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-2")
		require.NoError(t, err)
		require.Equal(t, rt.SessionID, got.SessionID)
	})

	t.Run("tx rollback on error", func(t *testing.T) {
		boom := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: "hash-3",
			SessionID: idx.New().String(),
			AMR:       []string{"pwd"},
			ExpiresAt: time.Now().Add(time.Hour).UTC(),
		}
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.RefreshTokens().CreateRefreshToken(ctx, boom); err != nil {
				return err
			}
			// Unknown hash aborts the transaction.
			return tx.RefreshTokens().RevokeRefreshToken(ctx, "no-such-hash")
		})
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-3")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("purge expired", func(t *testing.T) {
		stale := domain.RefreshToken{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: "hash-stale",
			SessionID: idx.New().String(),
			AMR:       []string{"pwd"},
			ExpiresAt: time.Now().Add(-time.Hour).UTC(),
		}
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, stale))

		require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx))

		_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-stale")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-2")
		require.NoError(t, err)
	})
}
