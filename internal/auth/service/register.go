package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/oxleyworks/gatehouse/internal/auth/domain"
	"github.com/oxleyworks/gatehouse/internal/auth/store"
	"github.com/oxleyworks/gatehouse/pkg/cryptox"
	"github.com/oxleyworks/gatehouse/pkg/idx"
	"github.com/oxleyworks/gatehouse/pkg/slogx"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// ValidationError carries per-field validation messages for a rejected
// registration, suitable for returning to the caller verbatim.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// AccountService creates user accounts.
type AccountService struct {
	Store store.Store
}

// Register creates a new account with a freshly hashed password. The
// raw password is never persisted. A duplicate username surfaces as a
// field error on "username" rather than a bare conflict, matching the
// shape of the other validation failures.
func (s *AccountService) Register(ctx context.Context, username, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if verr := validateRegistration(username, password); verr != nil {
		return domain.User{}, verr
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			verr := &ValidationError{}
			verr.add("username", "a user with that username already exists")
			return domain.User{}, verr
		}
		return domain.User{}, err
	}

	l.Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

func validateRegistration(username, password string) *ValidationError {
	verr := &ValidationError{}

	switch {
	case username == "":
		verr.add("username", "this field is required")
	case len(username) < minUsernameLength:
		verr.add("username", fmt.Sprintf("must be at least %d characters", minUsernameLength))
	case len(username) > maxUsernameLength:
		verr.add("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	case !usernamePattern.MatchString(username):
		verr.add("username", "may only contain letters, digits, and _ . -")
	}

	switch {
	case password == "":
		verr.add("password", "this field is required")
	case len(password) < minPasswordLength:
		verr.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
