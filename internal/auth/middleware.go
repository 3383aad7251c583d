package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arcline-io/arcline-accounts/internal/authz"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// LoadPrincipal restores the authenticated user from the session and attaches
// the authorization principal to the request context. Requests without a
// valid session continue unauthenticated; route guards decide what that means.
func LoadPrincipal(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(sess.User(), 10, 64)
			if err != nil {
				logger.Warn("session holds malformed user id", slog.String("value", sess.User()))
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.UserByID(r.Context(), id)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := authz.ContextWithPrincipal(r.Context(), user.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
