package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// MaxChainDepth bounds the upward parent walk. A chain longer than this is
// treated the same as a cycle.
const MaxChainDepth = 64

// RoleGetter is the read surface the resolver needs from the role store.
type RoleGetter interface {
	GetRole(ctx context.Context, id int64) (Role, error)
}

// Resolution is the outcome of resolving a role's effective permissions.
type Resolution struct {
	RoleID      int64
	RoleName    string
	Level       Level
	Permissions PermissionSet
}

// Resolver computes effective permission sets by walking the parent chain.
// It is pure computation over the store: no caches, no side effects.
type Resolver struct {
	store RoleGetter
}

// NewResolver constructs a Resolver.
func NewResolver(store RoleGetter) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks upward from the target role collecting each ancestor's own
// permissions, then merges root-first so that closer roles win on every
// permission name. The target role's own settings are applied last.
//
// A missing ancestor terminates the walk at that point; a revisited role id
// or a chain deeper than MaxChainDepth fails with shared.ErrCycleDetected.
func (r *Resolver) Resolve(ctx context.Context, roleID int64) (Resolution, error) {
	target, err := r.store.GetRole(ctx, roleID)
	if err != nil {
		return Resolution{}, err
	}

	// Chain is collected target-first; merge order is the reverse.
	chain := []Role{target}
	visited := map[int64]struct{}{target.ID: {}}

	current := target
	for current.ParentRoleID != nil {
		if len(chain) >= MaxChainDepth {
			return Resolution{}, fmt.Errorf("resolve role %d: chain exceeds %d hops: %w", roleID, MaxChainDepth, shared.ErrCycleDetected)
		}
		parentID := *current.ParentRoleID
		if _, seen := visited[parentID]; seen {
			return Resolution{}, fmt.Errorf("resolve role %d: parent chain revisits role %d: %w", roleID, parentID, shared.ErrCycleDetected)
		}
		parent, err := r.store.GetRole(ctx, parentID)
		if err != nil {
			if isNotFound(err) {
				break
			}
			return Resolution{}, fmt.Errorf("resolve role %d: load parent %d: %w", roleID, parentID, err)
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}

	merged := make(map[string]bool)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, perm := range chain[i].Permissions {
			merged[perm.Name] = perm.Allowed
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	perms := make(PermissionSet, 0, len(names))
	for _, name := range names {
		perms = append(perms, Permission{Name: name, Allowed: merged[name]})
	}

	return Resolution{
		RoleID:      target.ID,
		RoleName:    target.Name,
		Level:       target.Level,
		Permissions: perms,
	}, nil
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, shared.ErrNotFound)
}
