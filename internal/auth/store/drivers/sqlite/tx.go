package sqlite

import (
	"database/sql"

	"github.com/oxleyworks/gatehouse/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
