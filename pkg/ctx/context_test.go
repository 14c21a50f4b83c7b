package ctx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	appctx "github.com/darcho/darcho/pkg/ctx"
	"github.com/darcho/darcho/pkg/middleware"
)

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	appctx.Wrap(func(c *appctx.Context) {
		c.Success(map[string]any{"id": 1})
	})(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"data":{"id":1}}`, rec.Body.String())
}

func TestParamUint(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/products/{id}", appctx.Wrap(func(c *appctx.Context) {
		id, ok := c.ParamUint("id")
		if !ok {
			c.NotFound()
			return
		}
		c.Success(id)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/12", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":12`)

	for _, bad := range []string{"0", "-1", "abc"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/"+bad, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, bad)
	}
}

func TestPage(t *testing.T) {
	cases := map[string][2]int{
		"/":                  {1, 20},
		"/?page=3&limit=5":   {3, 5},
		"/?page=-2&limit=0":  {1, 20},
		"/?limit=1000":       {1, 100},
		"/?page=x&limit=abc": {1, 20},
	}
	for url, want := range cases {
		appctx.Wrap(func(c *appctx.Context) {
			page, limit := c.Page()
			assert.Equal(t, want[0], page, url)
			assert.Equal(t, want[1], limit, url)
		})(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, url, nil))
	}
}

func TestBindJSON(t *testing.T) {
	type input struct {
		Name  string `json:"name"  validate:"required"`
		Email string `json:"email" validate:"required,email"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Abebe","email":"abebe@example.com"}`))
	appctx.Wrap(func(c *appctx.Context) {
		var in input
		if assert.True(t, c.BindJSON(&in)) {
			assert.Equal(t, "Abebe", in.Name)
			c.Success(nil)
		}
	})(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	appctx.Wrap(func(c *appctx.Context) {
		var in input
		assert.False(t, c.BindJSON(&in))
	})(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	appctx.Wrap(func(c *appctx.Context) {
		var in input
		assert.False(t, c.BindJSON(&in))
	})(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{
		UserID: 5, Role: "buyer", SessionID: "s-1",
	}))
	appctx.Wrap(func(c *appctx.Context) {
		assert.Equal(t, uint(5), c.UserID())
		assert.Equal(t, "buyer", c.Role())
		assert.Equal(t, "s-1", c.SessionID())
	})(httptest.NewRecorder(), req)
}

func TestWrittenStatus(t *testing.T) {
	var status int
	appctx.Wrap(func(c *appctx.Context) {
		c.Forbidden("Farmer account is awaiting approval")
		status = c.WrittenStatus()
	})(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestBindOptionalJSON(t *testing.T) {
	type input struct {
		Reason string `json:"reason" validate:"omitempty,max=5"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	appctx.Wrap(func(c *appctx.Context) {
		var in input
		assert.True(t, c.BindOptionalJSON(&in))
		assert.Empty(t, in.Reason)
	})(rec, req)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"far too long"}`))
	appctx.Wrap(func(c *appctx.Context) {
		var in input
		assert.False(t, c.BindOptionalJSON(&in))
	})(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
