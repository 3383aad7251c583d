package authz

import (
	"log/slog"
	"net/http"

	"github.com/arcline-io/arcline-accounts/internal/platform/httpx"
)

// Middleware wires authorization helpers for HTTP handlers. The principal is
// attached to the request context by the auth session middleware.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// Require ensures the current user holds every listed permission.
func (m Middleware) Require(perms ...string) func(http.Handler) http.Handler {
	return m.check(perms, true)
}

// RequireAny ensures the current user holds at least one listed permission.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.check(perms, false)
}

func (m Middleware) check(perms []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := PrincipalFromContext(r.Context())
			granted := 0
			for _, perm := range perms {
				allowed, err := m.Gate.Authorize(principal, perm)
				if err != nil {
					httpx.RespondError(w, err)
					return
				}
				if allowed {
					granted++
					if !all {
						break
					}
				} else if all {
					break
				}
			}
			ok := granted > 0
			if all {
				ok = granted == len(perms)
			}
			if !ok {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("path", r.URL.Path),
						slog.Int64("user_id", principal.UserID))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
