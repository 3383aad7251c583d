// Package authz implements the request-time authorization gate. It decides
// against the cached permission snapshot populated by the role cascade; no
// chain walk or recomputation happens on this path.
package authz

import (
	"context"

	"github.com/arcline-io/arcline-accounts/internal/observability"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// PermissionChecker answers whether a named permission is granted.
type PermissionChecker interface {
	Allows(name string) bool
}

// Principal describes the authenticated actor. IsAdmin marks the designated
// top administrative role; Permissions is the actor's cached snapshot.
type Principal struct {
	UserID      int64
	RoleID      int64
	RoleName    string
	IsAdmin     bool
	Permissions PermissionChecker
}

// Gate evaluates permission checks.
type Gate struct {
	metrics *observability.Metrics
}

// NewGate constructs a Gate.
func NewGate(metrics *observability.Metrics) *Gate {
	return &Gate{metrics: metrics}
}

// Authorize decides allow/deny for the required permission. A missing
// principal is an error (shared.ErrUnauthenticated); denial is a normal
// false return, never an error. The administrator bypass takes effect before
// any permission lookup.
func (g *Gate) Authorize(p *Principal, permission string) (bool, error) {
	if p == nil || p.UserID == 0 {
		g.metrics.AuthzDecision("unauthenticated")
		return false, shared.ErrUnauthenticated
	}
	if p.IsAdmin {
		g.metrics.AuthzDecision("admin_bypass")
		return true, nil
	}
	if p.Permissions != nil && p.Permissions.Allows(permission) {
		g.metrics.AuthzDecision("allow")
		return true, nil
	}
	g.metrics.AuthzDecision("deny")
	return false, nil
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
