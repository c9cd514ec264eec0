package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/gabarito/internal/rbac"
)

// ErrUnknownSubject is returned by a RoleLookup when the token's subject no
// longer exists.
var ErrUnknownSubject = errors.New("unknown subject")

type RoleLookup func(ctx context.Context, sub string) (string, error)

// AttachRole replaces the role carried in the token with the current one, so
// deleted accounts and role changes take effect before the token expires.
// Lookup failures other than ErrUnknownSubject keep the token's role when
// allowClaimFallback is set (offline mode) and deny otherwise.
func AttachRole(lookup RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, err := lookup(ctx, SubjectFromContext(ctx))
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, ErrUnknownSubject):
				unauthorized(w, "usuário não encontrado")
			case allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			default:
				rbac.Deny(w)
			}
		})
	}
}
