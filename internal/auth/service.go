package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/arcline-io/arcline-accounts/internal/shared"
	"github.com/arcline-io/arcline-accounts/internal/users"
)

// UserFinder is the slice of the user store authentication needs.
type UserFinder interface {
	GetUser(ctx context.Context, id int64) (users.User, error)
	GetUserByEmail(ctx context.Context, email string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo UserFinder
}

// NewService constructs a new Service.
func NewService(repo UserFinder) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Active() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return &user, nil
}

// UserByID loads an active user for session restoration.
func (s *Service) UserByID(ctx context.Context, id int64) (*users.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, shared.ErrNotFound
	}
	return &user, nil
}
