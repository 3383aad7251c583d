package roles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// memRepo is an in-memory RepositoryPort mirroring the Postgres semantics:
// GetRole and GetRoleByName see soft-deleted rows, GetChildren and ListRoles
// do not.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	roles  map[int64]Role
}

func newMemRepo(seed ...Role) *memRepo {
	r := &memRepo{roles: make(map[int64]Role)}
	for _, role := range seed {
		r.roles[role.ID] = role
		if role.ID > r.nextID {
			r.nextID = role.ID
		}
	}
	return r
}

func (r *memRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (r *memRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrNotFound)
}

func (r *memRepo) GetChildren(ctx context.Context, parentID int64) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Role
	for _, role := range r.roles {
		if role.ParentRoleID != nil && *role.ParentRoleID == parentID && role.DeletedAt == nil {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memRepo) ListRoles(ctx context.Context, enterpriseID *int64) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Role
	for _, role := range r.roles {
		if role.DeletedAt != nil {
			continue
		}
		if enterpriseID != nil && (role.EnterpriseID == nil || *role.EnterpriseID != *enterpriseID) {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func (r *memRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	role.ID = r.nextID
	r.roles[role.ID] = role
	return role, nil
}

func (r *memRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.roles[role.ID]
	if !ok || current.DeletedAt != nil {
		return Role{}, fmt.Errorf("role %d: %w", role.ID, shared.ErrNotFound)
	}
	role.Effective = current.Effective
	r.roles[role.ID] = role
	return role, nil
}

func (r *memRepo) SetEffective(ctx context.Context, id int64, effective PermissionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	role.Effective = effective
	r.roles[id] = role
	return nil
}

func (r *memRepo) SoftDeleteRole(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok || role.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := role.CreatedAt
	role.DeletedAt = &now
	r.roles[id] = role
	return nil
}

func (r *memRepo) CountActiveChildren(ctx context.Context, id int64) (int64, error) {
	children, _ := r.GetChildren(ctx, id)
	return int64(len(children)), nil
}

// memUsers is an in-memory UserStorePort that can be told to fail updates for
// specific users.
type memUsers struct {
	mu        sync.Mutex
	byRole    map[int64][]int64
	snapshots map[int64]Snapshot
	failFor   map[int64]error
	writes    int
}

func newMemUsers() *memUsers {
	return &memUsers{
		byRole:    make(map[int64][]int64),
		snapshots: make(map[int64]Snapshot),
		failFor:   make(map[int64]error),
	}
}

func (m *memUsers) assign(userID, roleID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRole[roleID] = append(m.byRole[roleID], userID)
}

func (m *memUsers) ListIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.byRole[roleID]...), nil
}

func (m *memUsers) UpdateSnapshot(ctx context.Context, userID int64, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[userID]; err != nil {
		return err
	}
	m.snapshots[userID] = snap
	m.writes++
	return nil
}

func (m *memUsers) CountActiveByRole(ctx context.Context, roleID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byRole[roleID])), nil
}

type stubEnqueuer struct {
	roleIDs []int64
	err     error
}

func (s *stubEnqueuer) EnqueueCascade(ctx context.Context, roleID int64, runID string) error {
	if s.err != nil {
		return s.err
	}
	s.roleIDs = append(s.roleIDs, roleID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memRepo, users *memUsers) *Service {
	return NewService(repo, users, NewResolver(repo), testLogger(), nil, nil, ServiceConfig{})
}

func seedTree() *memRepo {
	// owner(1) <- manager(2) <- member(3); auditor(4) also under owner.
	return newMemRepo(
		Role{ID: 1, Name: "Owner", Level: LevelEnterpriseAdmin, Permissions: PermissionSet{
			{Name: "billing.edit", Allowed: true},
			{Name: "users.view", Allowed: true},
		}},
		Role{ID: 2, Name: "Manager", Level: LevelUser, ParentRoleID: ptr(int64(1)), Permissions: PermissionSet{
			{Name: "billing.edit", Allowed: false},
		}},
		Role{ID: 3, Name: "Member", Level: LevelUser, ParentRoleID: ptr(int64(2))},
		Role{ID: 4, Name: "Auditor", Level: LevelUser, ParentRoleID: ptr(int64(1))},
	)
}

func TestCreateRoleResolvesEffective(t *testing.T) {
	repo := seedTree()
	svc := newTestService(repo, newMemUsers())

	created, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:         "Intern",
		ParentRoleID: ptr(int64(2)),
		Permissions:  PermissionSet{{Name: "users.view", Allowed: false}},
	})
	require.NoError(t, err)
	require.Equal(t, LevelUser, created.Level)
	require.False(t, created.Effective.Allows("billing.edit"))
	require.False(t, created.Effective.Allows("users.view"))
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc := newTestService(seedTree(), newMemUsers())

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "Owner"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRoleMissingParent(t *testing.T) {
	svc := newTestService(seedTree(), newMemUsers())

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{
		Name:         "Ghost",
		ParentRoleID: ptr(int64(77)),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateRoleCascadesToDescendantsAndUsers(t *testing.T) {
	repo := seedTree()
	users := newMemUsers()
	users.assign(10, 2)
	users.assign(11, 3)
	users.assign(12, 4)
	svc := newTestService(repo, users)

	perms := PermissionSet{
		{Name: "billing.edit", Allowed: true},
		{Name: "reports.view", Allowed: true},
	}
	_, report, err := svc.UpdateRole(context.Background(), 1, UpdateRolePatch{Permissions: &perms})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.True(t, report.Complete())
	require.Equal(t, 4, report.RolesVisited)
	require.Equal(t, 3, report.UsersUpdated)

	// Manager still denies billing.edit for itself and Member.
	manager, _ := repo.GetRole(context.Background(), 2)
	require.False(t, manager.Effective.Allows("billing.edit"))
	require.True(t, manager.Effective.Allows("reports.view"))

	member, _ := repo.GetRole(context.Background(), 3)
	require.False(t, member.Effective.Allows("billing.edit"))

	// Auditor inherits the new allow directly.
	auditor, _ := repo.GetRole(context.Background(), 4)
	require.True(t, auditor.Effective.Allows("billing.edit"))

	require.True(t, users.snapshots[12].Permissions.Allows("billing.edit"))
	require.False(t, users.snapshots[11].Permissions.Allows("billing.edit"))
	require.Equal(t, "Member", users.snapshots[11].RoleName)
}

func TestCascadeIdempotent(t *testing.T) {
	repo := seedTree()
	users := newMemUsers()
	users.assign(10, 3)
	svc := newTestService(repo, users)

	first := svc.Cascade(context.Background(), 1)
	require.True(t, first.Complete())
	snapAfterFirst := users.snapshots[10]

	second := svc.Cascade(context.Background(), 1)
	require.True(t, second.Complete())
	require.Equal(t, first.RolesVisited, second.RolesVisited)
	require.Equal(t, snapAfterFirst, users.snapshots[10])
}

func TestCascadeCollectsFailuresWithoutAborting(t *testing.T) {
	repo := seedTree()
	users := newMemUsers()
	users.assign(10, 1)
	users.assign(11, 1)
	users.failFor[10] = errors.New("user store unavailable")
	svc := newTestService(repo, users)

	report := svc.Cascade(context.Background(), 1)
	require.False(t, report.Complete())
	require.Len(t, report.Failures, 1)
	require.Equal(t, int64(10), report.Failures[0].UserID)
	// The sibling user and the rest of the subtree were still refreshed.
	require.Equal(t, 1, report.UsersUpdated)
	require.Equal(t, 4, report.RolesVisited)
}

func TestCascadeSurvivesCyclicChildLinks(t *testing.T) {
	// Pathological store: 5 and 6 point at each other.
	repo := newMemRepo(
		Role{ID: 5, Name: "Tangle", ParentRoleID: ptr(int64(6))},
		Role{ID: 6, Name: "Knot", ParentRoleID: ptr(int64(5))},
	)
	svc := newTestService(repo, newMemUsers())

	report := svc.Cascade(context.Background(), 5)
	// Terminates instead of looping; the unresolvable branch is reported.
	require.Equal(t, 1, report.RolesVisited)
	require.False(t, report.Complete())
}

func TestUpdateRoleRejectsCycle(t *testing.T) {
	svc := newTestService(seedTree(), newMemUsers())

	// Re-pointing Owner under Member would close a cycle.
	_, _, err := svc.UpdateRole(context.Background(), 1, UpdateRolePatch{ParentRoleID: ptr(int64(3))})
	require.ErrorIs(t, err, shared.ErrCycleDetected)

	_, _, err = svc.UpdateRole(context.Background(), 2, UpdateRolePatch{ParentRoleID: ptr(int64(2))})
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestUpdateRoleClearParent(t *testing.T) {
	repo := seedTree()
	svc := newTestService(repo, newMemUsers())

	updated, report, err := svc.UpdateRole(context.Background(), 2, UpdateRolePatch{ClearParent: true})
	require.NoError(t, err)
	require.Nil(t, updated.ParentRoleID)
	require.True(t, report.Complete())

	// Member no longer inherits Owner's users.view through Manager.
	member, _ := repo.GetRole(context.Background(), 3)
	require.False(t, member.Effective.Allows("users.view"))
}

func TestUpdateRoleAsyncEnqueues(t *testing.T) {
	repo := seedTree()
	enq := &stubEnqueuer{}
	svc := NewService(repo, newMemUsers(), NewResolver(repo), testLogger(), nil, enq, ServiceConfig{AsyncCascade: true})

	perms := PermissionSet{{Name: "users.view", Allowed: false}}
	_, report, err := svc.UpdateRole(context.Background(), 2, UpdateRolePatch{Permissions: &perms})
	require.NoError(t, err)
	require.Nil(t, report)
	require.Equal(t, []int64{2}, enq.roleIDs)
}

func TestDeleteRoleStrictPolicy(t *testing.T) {
	repo := seedTree()
	users := newMemUsers()
	svc := newTestService(repo, users)

	err := svc.DeleteRole(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrHasDependents)

	users.assign(10, 3)
	err = svc.DeleteRole(context.Background(), 3)
	require.ErrorIs(t, err, shared.ErrHasDependents)

	require.NoError(t, svc.DeleteRole(context.Background(), 4))
	_, err = svc.GetRole(context.Background(), 4)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Deleting twice reports not found.
	err = svc.DeleteRole(context.Background(), 4)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveEffectiveDeletedRole(t *testing.T) {
	repo := seedTree()
	svc := newTestService(repo, newMemUsers())

	require.NoError(t, svc.DeleteRole(context.Background(), 4))
	_, err := svc.ResolveEffective(context.Background(), 4)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
