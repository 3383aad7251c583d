package enterprises

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// RepositoryPort defines data access methods for enterprises.
type RepositoryPort interface {
	CreateWithSeedRoles(ctx context.Context, name string, seeds []SeedRole) (Enterprise, error)
	GetEnterprise(ctx context.Context, id int64) (Enterprise, error)
	ListEnterprises(ctx context.Context) ([]Enterprise, error)
}

// Service handles enterprise business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateEnterprise bootstraps a tenant: the enterprise row plus the default
// role pair (Enterprise Admin and its child Team Member) when missing.
func (s *Service) CreateEnterprise(ctx context.Context, name string) (Enterprise, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Enterprise{}, fmt.Errorf("enterprises: name required: %w", shared.ErrConflict)
	}
	return s.repo.CreateWithSeedRoles(ctx, name, DefaultSeedRoles())
}

// GetEnterprise returns an enterprise by id.
func (s *Service) GetEnterprise(ctx context.Context, id int64) (Enterprise, error) {
	return s.repo.GetEnterprise(ctx, id)
}

// ListEnterprises returns all enterprises.
func (s *Service) ListEnterprises(ctx context.Context) ([]Enterprise, error) {
	return s.repo.ListEnterprises(ctx)
}

// DefaultSeedRoles builds the default role tree planted at bootstrap.
// Enterprise Admin grants every core scope; Team Member inherits from it and
// explicitly denies the edit scopes, keeping the view scopes through
// inheritance.
func DefaultSeedRoles() []SeedRole {
	adminOwn := roles.PermissionSet{}
	for _, scope := range shared.CoreScopes() {
		adminOwn = append(adminOwn, roles.Permission{Name: scope, Allowed: true})
	}
	memberOwn := roles.PermissionSet{
		{Name: shared.PermUsersEdit, Allowed: false},
		{Name: shared.PermRolesEdit, Allowed: false},
		{Name: shared.PermEnterprisesEdit, Allowed: false},
	}

	memberEffective := roles.PermissionSet{}
	denied := map[string]struct{}{}
	for _, p := range memberOwn {
		denied[p.Name] = struct{}{}
	}
	for _, p := range adminOwn {
		if _, overridden := denied[p.Name]; overridden {
			continue
		}
		memberEffective = append(memberEffective, p)
	}
	memberEffective = append(memberEffective, memberOwn...)

	return []SeedRole{
		{
			Name:      roles.RoleNameEnterpriseAdmin,
			Level:     roles.LevelEnterpriseAdmin,
			Own:       adminOwn,
			Effective: adminOwn,
		},
		{
			Name:       roles.RoleNameTeamMember,
			Level:      roles.LevelUser,
			ParentName: roles.RoleNameEnterpriseAdmin,
			Own:        memberOwn,
			Effective:  memberEffective,
		},
	}
}
