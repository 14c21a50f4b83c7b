// Package ctx gives Darcho handlers a single request context with helpers for
// params, binding, the authenticated caller and envelope responses.
//
//	func (pc *ProductController) Show(c *ctx.Context) {
//	    id, ok := c.ParamUint("id")
//	    if !ok {
//	        c.NotFound()
//	        return
//	    }
//	    c.Success(product)
//	}
//
//	r.Get("/api/products/{id}", "products.show", ctx.Wrap(pc.Show))
package ctx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/darcho/darcho/pkg/bind"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/orm"
	"github.com/darcho/darcho/pkg/response"
	"github.com/darcho/darcho/pkg/validate"
)

// HandlerFunc is the context-aware handler signature.
type HandlerFunc func(c *Context)

// Wrap converts a HandlerFunc to a standard http.HandlerFunc.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := acquire(w, r)
		defer release(c)
		h(c)
	}
}

// ─── Context ──────────────────────────────────────────────────────────────────

// Context wraps a request/response pair.
type Context struct {
	W      http.ResponseWriter
	R      *http.Request
	mu     sync.RWMutex
	store  map[string]any
	status int
}

var pool = sync.Pool{
	New: func() any { return &Context{store: make(map[string]any)} },
}

func acquire(w http.ResponseWriter, r *http.Request) *Context {
	c := pool.Get().(*Context)
	c.W = &statusWriter{ResponseWriter: w, c: c}
	c.R = r
	c.status = 0
	for k := range c.store {
		delete(c.store, k)
	}
	return c
}

func release(c *Context) {
	c.W = nil
	c.R = nil
	pool.Put(c)
}

type statusWriter struct {
	http.ResponseWriter
	c *Context
}

func (s *statusWriter) WriteHeader(code int) {
	s.c.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// ─── Request helpers ──────────────────────────────────────────────────────────

// Param returns a URL path parameter.
func (c *Context) Param(key string) string {
	return chi.URLParam(c.R, key)
}

// ParamUint parses a positive integer path parameter such as {id}.
func (c *Context) ParamUint(key string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(key), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Query returns a query-string value. Returns "" if not present.
func (c *Context) Query(key string) string {
	return c.R.URL.Query().Get(key)
}

// DefaultQuery returns a query-string value, or def if it is empty.
func (c *Context) DefaultQuery(key, def string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return def
}

// QueryInt parses an integer query value, falling back to def.
func (c *Context) QueryInt(key string, def int) int {
	return bind.IntParam(c.Query(key), def)
}

// QueryBool reports whether a query flag is set to a truthy value.
func (c *Context) QueryBool(key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

// Page returns the normalized ?page= and ?limit= values.
func (c *Context) Page() (page, limit int) {
	return orm.NormalizePage(c.QueryInt("page", 1), c.QueryInt("limit", orm.DefaultLimit))
}

// Header returns the value of a request header.
func (c *Context) Header(key string) string {
	return c.R.Header.Get(key)
}

// ClientIP returns the client IP, respecting X-Forwarded-For.
func (c *Context) ClientIP() string {
	return middleware.ClientIP(c.R)
}

// Context returns the underlying request context.
func (c *Context) Context() context.Context { return c.R.Context() }

// Logger returns the request-scoped logger.
func (c *Context) Logger() *slog.Logger { return logger.WithCtx(c.R.Context()) }

// ─── Caller identity ──────────────────────────────────────────────────────────

// UserID is the authenticated user's id, 0 on public routes.
func (c *Context) UserID() uint { return middleware.UserIDFromCtx(c.R.Context()) }

// Role is the authenticated user's role, "" on public routes.
func (c *Context) Role() string { return middleware.RoleFromCtx(c.R.Context()) }

// SessionID is the session the request's token belongs to.
func (c *Context) SessionID() string { return middleware.SessionIDFromCtx(c.R.Context()) }

// ─── Per-request store ────────────────────────────────────────────────────────

// Set stores a value in the per-request key-value store.
func (c *Context) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

// Get retrieves a value from the per-request store.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

// ─── Binding / Validation ─────────────────────────────────────────────────────

// BindJSON decodes the JSON body into dest and runs validation.
// On failure it writes a 400 or 422 and returns false.
//
//	var input RegisterInput
//	if !c.BindJSON(&input) {
//	    return
//	}
func (c *Context) BindJSON(dest any) bool {
	errs, err := bind.JSON(c.R, dest)
	if err != nil {
		c.Error(http.StatusBadRequest, err.Error())
		return false
	}
	if validate.HasErrors(errs) {
		c.ValidationError(errs)
		return false
	}
	return true
}

// BindOptionalJSON is BindJSON for endpoints whose body may be omitted. An
// empty body leaves dest at its zero value.
func (c *Context) BindOptionalJSON(dest any) bool {
	errs, err := bind.JSON(c.R, dest)
	if errors.Is(err, bind.ErrEmptyBody) {
		return true
	}
	if err != nil {
		c.Error(http.StatusBadRequest, err.Error())
		return false
	}
	if validate.HasErrors(errs) {
		c.ValidationError(errs)
		return false
	}
	return true
}

// ─── Response helpers ─────────────────────────────────────────────────────────

// SetHeader sets a response header.
func (c *Context) SetHeader(key, value string) {
	c.W.Header().Set(key, value)
}

// SetCookie writes an HttpOnly cookie scoped to the whole site.
func (c *Context) SetCookie(name, value string, maxAge int, secure bool) {
	http.SetCookie(c.W, &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// JSON writes data in the envelope with the given status.
func (c *Context) JSON(code int, data any) { response.JSON(c.W, code, data) }

// Success sends a 200 envelope.
func (c *Context) Success(data any) { response.Success(c.W, data) }

// Created sends a 201 envelope.
func (c *Context) Created(data any) { response.Created(c.W, data) }

// Message sends a 200 envelope carrying only a message.
func (c *Context) Message(msg string) { response.Message(c.W, msg) }

// Paginated sends a page of items with its metadata.
func (c *Context) Paginated(items any, p orm.Pagination) { response.Paginated(c.W, items, p) }

// Error sends an error envelope.
func (c *Context) Error(code int, message string) { response.Error(c.W, code, message) }

// ValidationError sends a 422 with field-level errors.
func (c *Context) ValidationError(errs map[string]string) { response.ValidationError(c.W, errs) }

// Unauthorized sends a 401.
func (c *Context) Unauthorized() { response.Unauthorized(c.W) }

// Forbidden sends a 403, optionally with a custom message.
func (c *Context) Forbidden(message ...string) {
	if len(message) > 0 {
		c.Error(http.StatusForbidden, message[0])
		return
	}
	response.Forbidden(c.W)
}

// NotFound sends a 404, optionally with a custom message.
func (c *Context) NotFound(message ...string) {
	if len(message) > 0 {
		c.Error(http.StatusNotFound, message[0])
		return
	}
	response.NotFound(c.W)
}

// WrittenStatus returns the status written so far, or 0.
func (c *Context) WrittenStatus() int { return c.status }
