package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	SetRole(ctx context.Context, userID int64, snap roles.Snapshot) error
	CountByEnterprise(ctx context.Context, enterpriseID int64) (int64, error)
}

// RoleProviderPort is the slice of the role engine the user service needs:
// role lookup plus fresh resolution for snapshotting.
type RoleProviderPort interface {
	GetRole(ctx context.Context, id int64) (roles.Role, error)
	GetRoleByName(ctx context.Context, name string) (roles.Role, error)
	ResolveEffective(ctx context.Context, id int64) (roles.Resolution, error)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	roles RoleProviderPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roleProvider RoleProviderPort) *Service {
	return &Service{repo: repo, roles: roleProvider}
}

// CreateUserInput carries the fields accepted when creating a user.
type CreateUserInput struct {
	FullName     string
	Email        string
	Phone        string
	Password     string
	EnterpriseID int64
	WorkspaceID  *int64
	TeamID       *int64
	// RoleName selects the initial role; empty means Team Member. The first
	// user of an enterprise is promoted to Enterprise Admin regardless.
	RoleName string
}

// CreateUser registers a new account and snapshots the resolved permissions
// of the assigned role onto it.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return User{}, fmt.Errorf("users: email %q already taken: %w", email, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	roleName := strings.TrimSpace(input.RoleName)
	if roleName == "" {
		roleName = roles.RoleNameTeamMember
	}
	existing, err := s.repo.CountByEnterprise(ctx, input.EnterpriseID)
	if err != nil {
		return User{}, err
	}
	if existing == 0 {
		roleName = roles.RoleNameEnterpriseAdmin
	}
	role, err := s.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return User{}, fmt.Errorf("users: role %q: %w", roleName, err)
	}
	res, err := s.roles.ResolveEffective(ctx, role.ID)
	if err != nil {
		return User{}, err
	}

	return s.repo.CreateUser(ctx, User{
		FullName:            strings.TrimSpace(input.FullName),
		Email:               email,
		Phone:               strings.TrimSpace(input.Phone),
		PasswordHash:        string(hash),
		EnterpriseID:        input.EnterpriseID,
		WorkspaceID:         input.WorkspaceID,
		TeamID:              input.TeamID,
		RoleID:              res.RoleID,
		RoleName:            res.RoleName,
		RoleLevel:           res.Level,
		PermissionsOverride: res.Permissions,
	})
}

// GetUser returns a user by id; deleted accounts read as not found.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user.Status == StatusDeleted {
		return User{}, fmt.Errorf("users: user %d is deleted: %w", id, shared.ErrNotFound)
	}
	return user, nil
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListUsers(ctx, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(page, perPage, total), nil
}

// UpdateUserPatch carries the mutable profile fields of a user.
type UpdateUserPatch struct {
	FullName    *string
	Phone       *string
	Password    *string
	WorkspaceID *int64
	TeamID      *int64
	Status      *Status
}

// UpdateUser applies the patch to profile fields. Role changes go through
// AssignRole so the permission snapshot is refreshed alongside.
func (s *Service) UpdateUser(ctx context.Context, id int64, patch UpdateUserPatch) (User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if patch.FullName != nil {
		user.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.Phone != nil {
		user.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if patch.WorkspaceID != nil {
		user.WorkspaceID = patch.WorkspaceID
	}
	if patch.TeamID != nil {
		user.TeamID = patch.TeamID
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	return s.repo.UpdateUser(ctx, user)
}

// DeleteUser soft-deletes an account by marking its status.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	user.Status = StatusDeleted
	_, err = s.repo.UpdateUser(ctx, user)
	return err
}

// AssignRole re-points a user to a role, resolving the role chain and
// overwriting the user's cached snapshot in the same write. Used at user
// creation and explicit reassignment.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) (User, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return User{}, err
	}
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return User{}, err
	}
	res, err := s.roles.ResolveEffective(ctx, role.ID)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.SetRole(ctx, userID, roles.Snapshot{
		RoleID:      res.RoleID,
		RoleName:    res.RoleName,
		RoleLevel:   res.Level,
		Permissions: res.Permissions,
	}); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, userID)
}
