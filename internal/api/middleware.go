package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/pkg/httputil"
)

type contextKey string

const identityKey contextKey = "identity"

// RequireIdentity reads the caller identity injected by the upstream
// auth proxy. Requests arriving without X-User-ID never reach a
// handler.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			httputil.Unauthorized(w, "missing identity")
			return
		}
		role := r.Header.Get("X-User-Role")
		if role == "" {
			role = "user"
		}
		ident := domain.Identity{UserID: userID, Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, ident)))
	})
}

// IdentityFrom returns the identity stored by RequireIdentity.
func IdentityFrom(ctx context.Context) domain.Identity {
	ident, _ := ctx.Value(identityKey).(domain.Identity)
	return ident
}

// RequireCronSecret guards the cron endpoints with a static bearer
// token. Absent or mismatched tokens get a hard 401.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httputil.Unauthorized(w, "cron endpoint disabled")
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				httputil.Unauthorized(w, "invalid cron token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
