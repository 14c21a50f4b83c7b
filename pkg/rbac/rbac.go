// Package rbac guards route groups by the caller's role.
package rbac

import (
	"net/http"

	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/response"
)

const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// HasRole allows only callers with one of roles. Authenticate must run first.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if middleware.UserIDFromCtx(r.Context()) == 0 {
				response.Unauthorized(w)
				return
			}
			if !allowed[middleware.RoleFromCtx(r.Context())] {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
