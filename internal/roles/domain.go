package roles

import "time"

// Level classifies the scope of a role. It is not consulted during
// permission resolution; LevelGlobalAdmin additionally marks the
// unconditional administrator bypass honored by the authorization gate.
type Level string

const (
	LevelGlobalAdmin     Level = "global_admin"
	LevelChannelAdmin    Level = "channel_admin"
	LevelEnterpriseAdmin Level = "enterprise_admin"
	LevelUser            Level = "user"
	LevelDevice          Level = "device"
)

// Valid reports whether the level is a known value.
func (l Level) Valid() bool {
	switch l {
	case LevelGlobalAdmin, LevelChannelAdmin, LevelEnterpriseAdmin, LevelUser, LevelDevice:
		return true
	}
	return false
}

// Well-known role names seeded at tenant bootstrap. The first user of an
// enterprise is promoted to RoleNameEnterpriseAdmin; later users default to
// RoleNameTeamMember.
const (
	RoleNameEnterpriseAdmin = "Enterprise Admin"
	RoleNameTeamMember      = "Team Member"
)

// Permission is a named capability with an allow/deny decision. Identity is
// the name within its owning list.
type Permission struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

// PermissionSet is an order-irrelevant collection of permissions keyed by name.
type PermissionSet []Permission

// Get looks up a permission decision by exact name.
func (ps PermissionSet) Get(name string) (allowed, found bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Allowed, true
		}
	}
	return false, false
}

// Allows reports whether the set grants the named permission.
func (ps PermissionSet) Allows(name string) bool {
	allowed, found := ps.Get(name)
	return found && allowed
}

// Role is a named bundle of permission decisions, optionally inheriting from
// one parent role. Permissions holds the role's own explicit settings; the
// effective set is derived from the ancestor chain and cached separately.
type Role struct {
	ID           int64
	Name         string
	Level        Level
	ParentRoleID *int64
	EnterpriseID *int64

	// Permissions is the role's own explicit settings, the source of truth.
	Permissions PermissionSet
	// Effective caches the resolved permission set. Maintained by the
	// mutation cascade, never authoritative on its own.
	Effective PermissionSet

	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the role carries the administrator bypass.
func (r Role) IsAdmin() bool {
	return r.Level == LevelGlobalAdmin
}

// Active reports whether the role has not been soft-deleted.
func (r Role) Active() bool {
	return r.DeletedAt == nil
}
