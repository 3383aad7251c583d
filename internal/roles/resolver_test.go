package roles

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

type stubRoleStore struct {
	roles map[int64]Role
}

func (s stubRoleStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func ptr[T any](v T) *T { return &v }

func TestResolveCloserRoleWins(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "Owner", Permissions: PermissionSet{
			{Name: "billing.edit", Allowed: true},
			{Name: "users.view", Allowed: true},
		}},
		2: {ID: 2, Name: "Manager", ParentRoleID: ptr(int64(1)), Permissions: PermissionSet{
			{Name: "billing.edit", Allowed: false},
			{Name: "reports.view", Allowed: true},
		}},
		3: {ID: 3, Name: "Member", ParentRoleID: ptr(int64(2)), Permissions: PermissionSet{
			{Name: "reports.view", Allowed: false},
		}},
	}}
	resolver := NewResolver(store)

	res, err := resolver.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.RoleID)
	require.Equal(t, "Member", res.RoleName)

	// Manager's deny overrides Owner's allow; Member's deny overrides both.
	require.Equal(t, PermissionSet{
		{Name: "billing.edit", Allowed: false},
		{Name: "reports.view", Allowed: false},
		{Name: "users.view", Allowed: true},
	}, res.Permissions)
}

func TestResolvePassThroughInheritance(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "Admin", Permissions: PermissionSet{
			{Name: "users.edit", Allowed: true},
		}},
		2: {ID: 2, Name: "Shadow", ParentRoleID: ptr(int64(1))},
	}}
	resolver := NewResolver(store)

	res, err := resolver.Resolve(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, res.Permissions.Allows("users.edit"))
}

func TestResolveRootRoleOwnSettingsOnly(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "Solo", Permissions: PermissionSet{
			{Name: "users.view", Allowed: true},
			{Name: "users.edit", Allowed: false},
		}},
	}}
	resolver := NewResolver(store)

	res, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Permissions.Allows("users.view"))
	allowed, found := res.Permissions.Get("users.edit")
	require.True(t, found)
	require.False(t, allowed)
}

func TestResolveCycleDetected(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "A", ParentRoleID: ptr(int64(2))},
		2: {ID: 2, Name: "B", ParentRoleID: ptr(int64(1))},
	}}
	resolver := NewResolver(store)

	_, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestResolveSelfParentCycle(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "Ouroboros", ParentRoleID: ptr(int64(1))},
	}}
	resolver := NewResolver(store)

	_, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestResolveDepthLimit(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{}}
	for i := int64(1); i <= MaxChainDepth+5; i++ {
		role := Role{ID: i, Name: fmt.Sprintf("r%d", i)}
		if i > 1 {
			role.ParentRoleID = ptr(i - 1)
		}
		store.roles[i] = role
	}
	resolver := NewResolver(store)

	_, err := resolver.Resolve(context.Background(), MaxChainDepth+5)
	require.ErrorIs(t, err, shared.ErrCycleDetected)
}

func TestResolveMissingAncestorTerminatesWalk(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		3: {ID: 3, Name: "Orphaned", ParentRoleID: ptr(int64(99)), Permissions: PermissionSet{
			{Name: "reports.view", Allowed: true},
		}},
	}}
	resolver := NewResolver(store)

	res, err := resolver.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, PermissionSet{{Name: "reports.view", Allowed: true}}, res.Permissions)
}

func TestResolveUnknownRole(t *testing.T) {
	resolver := NewResolver(stubRoleStore{roles: map[int64]Role{}})

	_, err := resolver.Resolve(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveDeterministicOrder(t *testing.T) {
	store := stubRoleStore{roles: map[int64]Role{
		1: {ID: 1, Name: "Mixed", Permissions: PermissionSet{
			{Name: "zeta", Allowed: true},
			{Name: "alpha", Allowed: true},
			{Name: "mid", Allowed: false},
		}},
	}}
	resolver := NewResolver(store)

	first, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, first.Permissions, second.Permissions)
	require.Equal(t, "alpha", first.Permissions[0].Name)
	require.Equal(t, "zeta", first.Permissions[2].Name)
}
