package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-io/arcline-accounts/internal/shared"
)

type permSet map[string]bool

func (p permSet) Allows(name string) bool { return p[name] }

func TestAuthorizeMissingPrincipal(t *testing.T) {
	gate := NewGate(nil)

	allowed, err := gate.Authorize(nil, shared.PermUsersView)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	require.False(t, allowed)

	allowed, err = gate.Authorize(&Principal{}, shared.PermUsersView)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
	require.False(t, allowed)
}

func TestAuthorizeAdminBypass(t *testing.T) {
	gate := NewGate(nil)
	p := &Principal{UserID: 1, IsAdmin: true, Permissions: permSet{}}

	allowed, err := gate.Authorize(p, "anything.at.all")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestAuthorizeSnapshotDecision(t *testing.T) {
	gate := NewGate(nil)
	p := &Principal{UserID: 2, Permissions: permSet{shared.PermUsersView: true}}

	allowed, err := gate.Authorize(p, shared.PermUsersView)
	require.NoError(t, err)
	require.True(t, allowed)

	// Denial is a normal outcome, not an error.
	allowed, err = gate.Authorize(p, shared.PermUsersEdit)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAuthorizeNilSnapshot(t *testing.T) {
	gate := NewGate(nil)

	allowed, err := gate.Authorize(&Principal{UserID: 3}, shared.PermUsersView)
	require.NoError(t, err)
	require.False(t, allowed)
}

func middlewareRequest(t *testing.T, mw func(http.Handler) http.Handler, p *Principal) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if p != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireAllPermissions(t *testing.T) {
	mw := Middleware{Gate: NewGate(nil)}
	require2 := mw.Require(shared.PermUsersView, shared.PermUsersEdit)

	rec := middlewareRequest(t, require2, &Principal{UserID: 1, Permissions: permSet{
		shared.PermUsersView: true,
		shared.PermUsersEdit: true,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = middlewareRequest(t, require2, &Principal{UserID: 1, Permissions: permSet{
		shared.PermUsersView: true,
	}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyPermission(t *testing.T) {
	mw := Middleware{Gate: NewGate(nil)}
	anyOf := mw.RequireAny(shared.PermUsersView, shared.PermUsersEdit)

	rec := middlewareRequest(t, anyOf, &Principal{UserID: 1, Permissions: permSet{
		shared.PermUsersEdit: true,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = middlewareRequest(t, anyOf, &Principal{UserID: 1, Permissions: permSet{}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireUnauthenticated(t *testing.T) {
	mw := Middleware{Gate: NewGate(nil)}

	rec := middlewareRequest(t, mw.Require(shared.PermUsersView), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminBypassesEverything(t *testing.T) {
	mw := Middleware{Gate: NewGate(nil)}

	rec := middlewareRequest(t, mw.Require("roles.edit", "users.edit", "exotic.perm"),
		&Principal{UserID: 9, IsAdmin: true})
	require.Equal(t, http.StatusNoContent, rec.Code)
}
