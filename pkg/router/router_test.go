package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func tag(v string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Chain", v)
			next.ServeHTTP(w, r)
		})
	}
}

func TestGroupMethodsAndMiddlewareOrder(t *testing.T) {
	r := New()
	buyer := r.Group("/api/buyer", tag("auth"), tag("role"))
	buyer.Get("/cart", "buyer.cart", ok)
	buyer.Put("/cart/{productID}", "buyer.cart.update", ok)
	buyer.Delete("/cart/{productID}", "buyer.cart.remove", ok)
	buyer.Patch("/orders/{id}", "", ok, tag("route"))

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/buyer/orders/3", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"auth", "role", "route"}, w.Header().Values("X-Chain"))

	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/buyer/cart/1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"status":404`)
}

func TestNamedURL(t *testing.T) {
	r := New()
	r.Group("api").Group("/farmer/").Get("orders/{id}", "farmer.orders.show", ok)

	path, found := r.Path("farmer.orders.show")
	require.True(t, found)
	assert.Equal(t, "/api/farmer/orders/{id}", path)

	url, err := r.URL("farmer.orders.show", map[string]string{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "/api/farmer/orders/42", url)

	_, err = r.URL("farmer.orders.show", nil)
	assert.Error(t, err)
	_, err = r.URL("missing", nil)
	assert.Error(t, err)
}

func TestRoutesSorted(t *testing.T) {
	r := New()
	r.Post("/b", "b", ok)
	r.Get("/a", "a", ok)
	r.Get("/b", "b.show", ok)
	r.Mount("/storage", "storage", http.NotFoundHandler())

	routes := r.Routes()
	require.Len(t, routes, 4)
	assert.Equal(t, RouteInfo{Method: "GET", Path: "/a", Name: "a"}, routes[0])
	assert.Equal(t, "GET", routes[1].Method)
	assert.Equal(t, "POST", routes[2].Method)
	assert.Equal(t, "/storage/*", routes[3].Path)
}
