package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arcline-io/arcline-accounts/internal/observability"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	GetChildren(ctx context.Context, parentID int64) ([]Role, error)
	ListRoles(ctx context.Context, enterpriseID *int64) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	SetEffective(ctx context.Context, id int64, effective PermissionSet) error
	SoftDeleteRole(ctx context.Context, id int64) error
	CountActiveChildren(ctx context.Context, id int64) (int64, error)
}

// Snapshot is the materialized permission state written onto a user whenever
// the assigned role or any of its ancestors changes.
type Snapshot struct {
	RoleID      int64
	RoleName    string
	RoleLevel   Level
	Permissions PermissionSet
}

// UserStorePort is the surface the cascade needs from the user store.
type UserStorePort interface {
	ListIDsByRole(ctx context.Context, roleID int64) ([]int64, error)
	UpdateSnapshot(ctx context.Context, userID int64, snap Snapshot) error
	CountActiveByRole(ctx context.Context, roleID int64) (int64, error)
}

// CascadeEnqueuer hands a cascade off to the background worker when the
// service runs in asynchronous mode.
type CascadeEnqueuer interface {
	EnqueueCascade(ctx context.Context, roleID int64, runID string) error
}

// Service coordinates role mutations and propagates permission changes down
// the role subtree and onto every affected user's cached snapshot.
type Service struct {
	repo     RepositoryPort
	users    UserStorePort
	resolver *Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
	enqueue  CascadeEnqueuer
	async    bool
}

// ServiceConfig tunes cascade behavior.
type ServiceConfig struct {
	// AsyncCascade enqueues cascades to the worker instead of running them
	// inline. Authorization becomes eventually consistent in this mode.
	AsyncCascade bool
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, users UserStorePort, resolver *Resolver, logger *slog.Logger, metrics *observability.Metrics, enqueue CascadeEnqueuer, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		enqueue:  enqueue,
		async:    cfg.AsyncCascade && enqueue != nil,
	}
}

// CreateRoleInput carries the fields accepted when creating a role.
type CreateRoleInput struct {
	Name         string
	Level        Level
	ParentRoleID *int64
	EnterpriseID *int64
	Permissions  PermissionSet
}

// UpdateRolePatch carries the mutable fields of a role. Nil fields are left
// untouched; ClearParent detaches the role from its parent.
type UpdateRolePatch struct {
	Name         *string
	Level        *Level
	Permissions  *PermissionSet
	ParentRoleID *int64
	ClearParent  bool
}

// CreateRole persists a new role. The role starts without a parent unless one
// is specified; a fresh role has no descendants or users, so no cascade runs.
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: role name required: %w", shared.ErrConflict)
	}
	level := input.Level
	if level == "" {
		level = LevelUser
	}
	if !level.Valid() {
		return Role{}, fmt.Errorf("roles: unknown level %q: %w", level, shared.ErrNotFound)
	}

	if _, err := s.repo.GetRoleByName(ctx, name); err == nil {
		return Role{}, fmt.Errorf("roles: name %q already exists: %w", name, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Role{}, err
	}

	if input.ParentRoleID != nil {
		parent, err := s.repo.GetRole(ctx, *input.ParentRoleID)
		if err != nil {
			return Role{}, fmt.Errorf("roles: parent role %d: %w", *input.ParentRoleID, err)
		}
		if !parent.Active() {
			return Role{}, fmt.Errorf("roles: parent role %d is deleted: %w", parent.ID, shared.ErrNotFound)
		}
	}

	created, err := s.repo.CreateRole(ctx, Role{
		Name:         name,
		Level:        level,
		ParentRoleID: input.ParentRoleID,
		EnterpriseID: input.EnterpriseID,
		Permissions:  input.Permissions,
	})
	if err != nil {
		return Role{}, err
	}

	res, err := s.resolver.Resolve(ctx, created.ID)
	if err != nil {
		return Role{}, err
	}
	if err := s.repo.SetEffective(ctx, created.ID, res.Permissions); err != nil {
		return Role{}, err
	}
	created.Effective = res.Permissions
	return created, nil
}

// UpdateRole applies the patch, persists the role, refreshes its own cached
// effective set, then cascades recomputation to every descendant role and
// every user assigned to any role in the subtree.
//
// The role's own write completes before any descendant or user cache update
// reads from it. In asynchronous mode the returned report is nil and the
// cascade runs on the worker.
func (s *Service) UpdateRole(ctx context.Context, id int64, patch UpdateRolePatch) (Role, *CascadeReport, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	if !role.Active() {
		return Role{}, nil, fmt.Errorf("roles: role %d is deleted: %w", id, shared.ErrNotFound)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Role{}, nil, fmt.Errorf("roles: role name required: %w", shared.ErrConflict)
		}
		if name != role.Name {
			if existing, err := s.repo.GetRoleByName(ctx, name); err == nil && existing.ID != id {
				return Role{}, nil, fmt.Errorf("roles: name %q already exists: %w", name, shared.ErrConflict)
			} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return Role{}, nil, err
			}
		}
		role.Name = name
	}
	if patch.Level != nil {
		if !patch.Level.Valid() {
			return Role{}, nil, fmt.Errorf("roles: unknown level %q: %w", *patch.Level, shared.ErrNotFound)
		}
		role.Level = *patch.Level
	}
	if patch.Permissions != nil {
		role.Permissions = *patch.Permissions
	}
	if patch.ClearParent {
		role.ParentRoleID = nil
	} else if patch.ParentRoleID != nil {
		if err := s.validateParent(ctx, id, *patch.ParentRoleID); err != nil {
			return Role{}, nil, err
		}
		role.ParentRoleID = patch.ParentRoleID
	}

	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, nil, err
	}

	if s.async {
		runID := newRunID()
		if err := s.enqueue.EnqueueCascade(ctx, id, runID); err != nil {
			return Role{}, nil, fmt.Errorf("roles: enqueue cascade: %w", err)
		}
		s.logger.Info("role cascade enqueued",
			slog.Int64("role_id", id), slog.String("run_id", runID))
		return updated, nil, nil
	}

	report := s.Cascade(ctx, id)
	updated.Effective, _ = s.effectiveAfterCascade(ctx, id, updated.Effective)
	return updated, report, nil
}

// DeleteRole soft-deletes a role. Strict policy: the delete is refused with
// ErrHasDependents while active child roles or assigned users remain, so
// callers must re-point dependents first.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if !role.Active() {
		return fmt.Errorf("roles: role %d is deleted: %w", id, shared.ErrNotFound)
	}

	children, err := s.repo.CountActiveChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return fmt.Errorf("roles: %d active child roles: %w", children, shared.ErrHasDependents)
	}
	assigned, err := s.users.CountActiveByRole(ctx, id)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("roles: %d assigned users: %w", assigned, shared.ErrHasDependents)
	}

	return s.repo.SoftDeleteRole(ctx, id)
}

// GetRole fetches an active role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !role.Active() {
		return Role{}, fmt.Errorf("roles: role %d is deleted: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

// GetRoleByName fetches an active role by its unique name.
func (s *Service) GetRoleByName(ctx context.Context, name string) (Role, error) {
	role, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		return Role{}, err
	}
	if !role.Active() {
		return Role{}, fmt.Errorf("roles: role %q is deleted: %w", name, shared.ErrNotFound)
	}
	return role, nil
}

// ListRoles returns all active roles, optionally scoped to an enterprise.
func (s *Service) ListRoles(ctx context.Context, enterpriseID *int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, enterpriseID)
}

// ResolveEffective computes the effective permission set for a role directly
// from the store, bypassing the cached copy.
func (s *Service) ResolveEffective(ctx context.Context, id int64) (Resolution, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	if !role.Active() {
		return Resolution{}, fmt.Errorf("roles: role %d is deleted: %w", id, shared.ErrNotFound)
	}
	return s.resolver.Resolve(ctx, id)
}

// validateParent rejects self-parenting and re-pointing that would close a
// cycle, before anything is persisted.
func (s *Service) validateParent(ctx context.Context, id, parentID int64) error {
	if parentID == id {
		return fmt.Errorf("roles: role %d cannot parent itself: %w", id, shared.ErrCycleDetected)
	}
	parent, err := s.repo.GetRole(ctx, parentID)
	if err != nil {
		return fmt.Errorf("roles: parent role %d: %w", parentID, err)
	}
	if !parent.Active() {
		return fmt.Errorf("roles: parent role %d is deleted: %w", parentID, shared.ErrNotFound)
	}

	// Walk up from the candidate parent; finding the role being re-pointed
	// means the new edge would close a cycle.
	current := parent
	for hops := 0; hops < MaxChainDepth; hops++ {
		if current.ID == id {
			return fmt.Errorf("roles: re-pointing role %d under %d closes a cycle: %w", id, parentID, shared.ErrCycleDetected)
		}
		if current.ParentRoleID == nil {
			return nil
		}
		next, err := s.repo.GetRole(ctx, *current.ParentRoleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			return err
		}
		current = next
	}
	return fmt.Errorf("roles: ancestor chain of %d exceeds %d hops: %w", parentID, MaxChainDepth, shared.ErrCycleDetected)
}

func (s *Service) effectiveAfterCascade(ctx context.Context, id int64, fallback PermissionSet) (PermissionSet, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return fallback, err
	}
	return role.Effective, nil
}
