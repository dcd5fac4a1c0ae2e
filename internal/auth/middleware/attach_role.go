package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// ErrUnknownSubject is returned by a RoleLookup when the subject no longer
// exists.
var ErrUnknownSubject = errors.New("unknown subject")

// RoleLookup resolves the current role of a user id.
type RoleLookup func(ctx context.Context, sub string) (string, error)

// AttachRoleFromStore replaces the role carried by the token with the one
// stored for the subject, so role changes apply without a new token. Anonymous
// requests pass through untouched. A subject that no longer exists is
// rejected; other lookup failures fall back to the token's role only when
// allowClaimFallback is set.
func AttachRoleFromStore(lookup RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			if sub == "" {
				next.ServeHTTP(w, r)
				return
			}

			role, err := lookup(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, ErrUnknownSubject):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			case allowClaimFallback && rbac.RoleFromContext(ctx) != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
