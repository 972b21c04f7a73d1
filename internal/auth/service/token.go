package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/cryptox"
	"github.com/oxleyworks/gatehouse/pkg/idx"
	"github.com/oxleyworks/gatehouse/pkg/jwtx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
)

// TokenService issues signed access tokens paired with opaque,
// server-side revocable refresh tokens.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issue creates a fresh token pair for a user. The access token carries
// the given AMR history; the refresh token is persisted by fingerprint
// so it can be revoked later. An empty sessionID starts a new session.
func (s *TokenService) Issue(ctx context.Context, u domain.User, sessionID string, amr []string) (*domain.TokenPair, error) {
	now := time.Now()

	if sessionID == "" {
		sessionID = idx.New().String()
	}

	accessToken, err := s.signAccess(u, sessionID, amr, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		SessionID: sessionID,
		AMR:       amr,
		ExpiresAt: now.Add(s.RefreshTTL),
		Revoked:   false,
	}

	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The old
// refresh token is revoked and a replacement is created in the same
// transaction, so a presented token is only ever good for one exchange.
func (s *TokenService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if rt.Revoked {
		l.Info("refresh attempted with revoked token", slog.String("session_id", rt.SessionID))
		return nil, ErrInvalidToken
	}
	if now.After(rt.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	u, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	// Preserve AMR history across the exchange, noting the refresh itself.
	amr := dedupe(append(rt.AMR, jwtx.AMRRefresh))

	accessToken, err := s.signAccess(u, rt.SessionID, amr, now)
	if err != nil {
		return nil, err
	}

	newRefreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	newRT := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(newRefreshOpaque),
		SessionID: rt.SessionID, // session survives rotation
		AMR:       amr,
		ExpiresAt: now.Add(s.RefreshTTL),
		Revoked:   false,
	}

	if err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, newRT)
	}); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Revoke invalidates a refresh token by its opaque value. Revoking a
// token that is already revoked succeeds; a token that was never issued
// returns ErrInvalidToken.
func (s *TokenService) Revoke(ctx context.Context, refreshOpaque string) error {
	if refreshOpaque == "" {
		return ErrInvalidToken
	}

	fp := cryptox.FingerprintToken(refreshOpaque)
	if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

func (s *TokenService) signAccess(
	u domain.User,
	sessionID string,
	amr []string,
	now time.Time,
) (string, error) {
	claims := jwtx.NewAccessClaims(
		u.ID,        // subject
		sessionID,   // session ID
		amr,         // authentication methods
		s.AccessTTL, // token lifetime
		s.Issuer,    // issuer
		u.Username,  // username
		now,         // current time
	)
	// Use GetSigner() to distribute signing across multiple keys
	signer := s.KeyManager.GetSigner()
	return signer.Sign(claims)
}

// dedupe returns values with duplicates removed, preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
