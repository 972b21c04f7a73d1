package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/oxleyworks/gatehouse/pkg/cryptox"
	"github.com/oxleyworks/gatehouse/pkg/idx"
	"github.com/oxleyworks/gatehouse/pkg/jwtx"
)

const testIssuer = "gatehouse-test"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "gatehouse-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper.key"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestTokenService(t *testing.T, st store.Store) *TokenService {
	t.Helper()

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:  testIssuer,
		NumKeys: 1,
	})
	require.NoError(t, err)

	return &TokenService{
		KeyManager: keyManager,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

func createTestUser(t *testing.T, st store.Store, username, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}
