package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()

	st := newTestStore(t)
	svc := &AccountService{Store: st}

	t.Run("creates user with hashed password", func(t *testing.T) {
		u, err := svc.Register(ctx, "alice", "correct horse battery")
		require.NoError(t, err)
		require.NotEmpty(t, u.ID)
		require.Equal(t, "alice", u.Username)
		require.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))
		require.NotContains(t, u.PasswordHash, "correct horse battery")

		stored, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, stored.ID)
		require.False(t, stored.MFARequired())
		require.False(t, stored.MFAInitialized())
	})

	t.Run("duplicate username is a field error", func(t *testing.T) {
		_, err := svc.Register(ctx, "alice", "another password")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "username")
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, "", "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "username")
		require.Contains(t, verr.Fields, "password")
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, "bob", "short")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "password")
		require.NotContains(t, verr.Fields, "username")
	})

	t.Run("username charset enforced", func(t *testing.T) {
		_, err := svc.Register(ctx, "bad name!", "a fine password")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "username")
	})
}
