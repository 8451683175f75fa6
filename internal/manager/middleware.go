package manager

import (
	"context"
	"net/http"
	"strings"

	"github.com/migasfree/migasfree-swarm/internal/coreauth"
)

type contextKey string

const userContextKey contextKey = "coreauth_user"

// Authenticate validates the Authorization: Bearer header against the core
// and admits only users with is_superuser=true: every /v1/private route
// this middleware guards can mint certificates or tunnel into an endpoint,
// so staff-but-not-superuser accounts are rejected the same as unauthenticated
// ones.
func Authenticate(verifier coreauth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				ErrUnauthorized(w, "missing bearer token")
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			switch {
			case err == nil:
				if !user.IsSuperuser {
					ErrForbidden(w, "superuser privileges required")
					return
				}
				ctx := context.WithValue(r.Context(), userContextKey, user)
				next.ServeHTTP(w, r.WithContext(ctx))
			case err == coreauth.ErrUnauthenticated:
				ErrUnauthorized(w, "invalid or expired token")
			default:
				ErrUpstreamUnavailable(w, "authentication service unavailable")
			}
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}
