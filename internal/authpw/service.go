// Package authpw provides email/password sign-in.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"kv21/api/internal/store"
)

// ErrBadCredentials covers both unknown emails and wrong passwords. Callers
// must not be able to tell the two apart.
var ErrBadCredentials = errors.New("invalid email or password")

// UserStore defines the storage interface for sign-in
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, ErrBadCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Still burn a bcrypt comparison so a missing account costs the same
		// as a wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return store.User{}, ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrBadCredentials
	}

	return user, nil
}

// HashPassword hashes a plaintext password for storage. Account provisioning
// happens outside the API, this is here for the seeding tooling and tests.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
