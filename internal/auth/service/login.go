package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/cryptox"
	"github.com/oxleyworks/gatehouse/pkg/jwtx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

// LoginResult is the outcome of a password check.
//
// When MFARequired is set, no tokens are issued: the caller must complete
// an OTP verification for UserID before any credentials are handed out.
// SetupRequired signals that the account has not finished MFA enrollment
// yet, so the returned tokens were issued on the password factor alone.
type LoginResult struct {
	MFARequired   bool
	SetupRequired bool
	UserID        string
	Tokens        *domain.TokenPair
}

// AuthService implements the password login flow.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService
}

// Login verifies a username/password pair.
//
// Unknown usernames and wrong passwords are indistinguishable to the
// caller: both return ErrInvalidCredentials. Accounts with MFA enabled
// get a deferred result instead of tokens.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("login failed: unknown username")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("login failed: password mismatch", slog.String("user_id", u.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	if u.MFARequired() {
		return LoginResult{
			MFARequired: true,
			UserID:      u.ID,
		}, nil
	}

	tokens, err := s.Tokens.Issue(ctx, u, "", []string{jwtx.AMRPassword})
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		SetupRequired: true,
		UserID:        u.ID,
		Tokens:        tokens,
	}, nil
}
