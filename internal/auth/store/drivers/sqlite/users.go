package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, password_hash, mfa_secret, mfa_enabled, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, mfa_secret, mfa_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, NULL, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, now, now)
	return mapConstraint(err)
}

func (r *usersRepo) SetMFASecretIfEmpty(ctx context.Context, userID, secret string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, updated_at = ?
		 WHERE id = ? AND (mfa_secret IS NULL OR mfa_secret = '')`,
		secret, time.Now().UTC(), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	// Guarded so the enabled-at timestamp records the first verification and
	// never moves afterwards.
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = ?, updated_at = ?
		 WHERE id = ? AND mfa_enabled IS NULL`,
		time.Now().UTC(), time.Now().UTC(), userID)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var secret sql.NullString
	var enabled sql.NullTime

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &secret, &enabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.MFASecret = mapNullStringPtr(secret)
	if enabled.Valid {
		t := enabled.Time
		u.MFAEnabled = &t
	}
	return u, nil
}
