package users

import (
	"time"

	"github.com/arcline-io/arcline-accounts/internal/authz"
	"github.com/arcline-io/arcline-accounts/internal/roles"
)

// Status is the lifecycle state of a user account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// User represents a user account. PermissionsOverride is the materialized
// copy of the resolved permission set for the user's role, refreshed at role
// assignment time and by the mutation cascade; RoleName and RoleLevel are
// snapshotted alongside it so the authorization gate needs no store reads.
type User struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	PasswordHash string

	EnterpriseID int64
	WorkspaceID  *int64
	TeamID       *int64

	RoleID              int64
	RoleName            string
	RoleLevel           roles.Level
	PermissionsOverride roles.PermissionSet

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the account may authenticate.
func (u User) Active() bool {
	return u.Status == StatusActive
}

// Principal converts the user into the gate's view of the actor.
func (u User) Principal() *authz.Principal {
	return &authz.Principal{
		UserID:      u.ID,
		RoleID:      u.RoleID,
		RoleName:    u.RoleName,
		IsAdmin:     u.RoleLevel == roles.LevelGlobalAdmin,
		Permissions: u.PermissionsOverride,
	}
}
