package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/rbac"
)

func TestHasRole(t *testing.T) {
	h := rbac.HasRole(rbac.RoleFarmer, rbac.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name string
		id   *middleware.Identity
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"buyer", &middleware.Identity{UserID: 1, Role: rbac.RoleBuyer}, http.StatusForbidden},
		{"farmer", &middleware.Identity{UserID: 2, Role: rbac.RoleFarmer}, http.StatusOK},
		{"admin", &middleware.Identity{UserID: 3, Role: rbac.RoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/farmer/products", nil)
			if tc.id != nil {
				req = req.WithContext(middleware.WithIdentity(req.Context(), *tc.id))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
