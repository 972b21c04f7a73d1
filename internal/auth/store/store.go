package store

import (
	"context"
	"errors"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. Use it for multi-step operations that must be atomic,
	// like refresh token rotation.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Users() Users
	RefreshTokens() RefreshTokens
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// SetMFASecretIfEmpty stores the TOTP secret only when none exists yet,
	// reporting whether the write happened. The conditional update is what
	// keeps two concurrent enrollments from persisting different secrets.
	SetMFASecretIfEmpty(ctx context.Context, userID, secret string) (bool, error)

	// EnableMFA stamps mfa_enabled if it is not already set. The column only
	// ever transitions null -> timestamp.
	EnableMFA(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked for the fingerprint. Returns
	// ErrNotFound when no such token exists; revoking an already-revoked
	// token is a no-op success.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}
