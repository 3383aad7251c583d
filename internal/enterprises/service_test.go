package enterprises

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

type captureRepo struct {
	name  string
	seeds []SeedRole
}

func (c *captureRepo) CreateWithSeedRoles(ctx context.Context, name string, seeds []SeedRole) (Enterprise, error) {
	c.name = name
	c.seeds = seeds
	return Enterprise{ID: 1, Name: name}, nil
}

func (c *captureRepo) GetEnterprise(ctx context.Context, id int64) (Enterprise, error) {
	return Enterprise{ID: id, Name: c.name}, nil
}

func (c *captureRepo) ListEnterprises(ctx context.Context) ([]Enterprise, error) {
	return nil, nil
}

func TestCreateEnterprisePlantsSeedRoles(t *testing.T) {
	repo := &captureRepo{}
	svc := NewService(repo)

	ent, err := svc.CreateEnterprise(context.Background(), "  Acme Corp  ")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", ent.Name)
	require.Len(t, repo.seeds, 2)
	require.Equal(t, roles.RoleNameEnterpriseAdmin, repo.seeds[0].Name)
	require.Equal(t, roles.RoleNameTeamMember, repo.seeds[1].Name)
	require.Equal(t, roles.RoleNameEnterpriseAdmin, repo.seeds[1].ParentName)
}

func TestCreateEnterpriseRequiresName(t *testing.T) {
	svc := NewService(&captureRepo{})

	_, err := svc.CreateEnterprise(context.Background(), "   ")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDefaultSeedRolesMerge(t *testing.T) {
	seeds := DefaultSeedRoles()
	admin, member := seeds[0], seeds[1]

	// Admin grants every core scope.
	for _, scope := range shared.CoreScopes() {
		require.True(t, admin.Effective.Allows(scope), scope)
	}

	// Member keeps the view scopes through inheritance but loses the edits.
	require.True(t, member.Effective.Allows(shared.PermUsersView))
	require.True(t, member.Effective.Allows(shared.PermRolesView))
	require.False(t, member.Effective.Allows(shared.PermUsersEdit))
	require.False(t, member.Effective.Allows(shared.PermRolesEdit))
	require.False(t, member.Effective.Allows(shared.PermEnterprisesEdit))

	// The deny entries are present, not merely absent.
	allowed, found := member.Effective.Get(shared.PermUsersEdit)
	require.True(t, found)
	require.False(t, allowed)
}
