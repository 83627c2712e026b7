package middleware

import (
	"net/http"

	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

// RequireRole returns middleware that restricts access to actors with one of the given roles.
func RequireRole(roles ...lease.Role) func(http.Handler) http.Handler {
	allowed := make(map[lease.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "authorization required")
				return
			}
			if !allowed[a.Role] {
				writeError(w, http.StatusForbidden, "Unauthorized", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
