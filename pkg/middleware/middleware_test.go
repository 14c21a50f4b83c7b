package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/auth"
	"github.com/darcho/darcho/pkg/cache"
	"github.com/darcho/darcho/pkg/middleware"
	"github.com/darcho/darcho/pkg/session"
)

func login(t *testing.T, userID uint, role string) (*session.Record, *auth.Pair) {
	t.Helper()
	config.Set("JWT_SECRET", "middleware-test")
	rec, err := session.Create(context.Background(), userID, role, session.Meta{}, time.Hour)
	require.NoError(t, err)
	pair, err := auth.IssuePair(userID, role, rec.ID)
	require.NoError(t, err)
	return rec, pair
}

func whoami(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-User", middleware.RoleFromCtx(r.Context()))
	w.WriteHeader(http.StatusOK)
}

func TestAuthenticate(t *testing.T) {
	cache.Use(cache.NewMemoryStore())
	rec, pair := login(t, 9, "buyer")
	h := middleware.Authenticate(http.HandlerFunc(whoami))

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "buyer", w.Header().Get("X-User"))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: pair.AccessToken})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("query token only on websocket route", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?token="+pair.AccessToken, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = httptest.NewRecorder()
		middleware.AuthenticateWS(http.HandlerFunc(whoami)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?token="+pair.AccessToken, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("revoked session", func(t *testing.T) {
		require.NoError(t, session.Revoke(context.Background(), rec.ID))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	cache.Use(cache.NewMemoryStore())
	_, pair := login(t, 3, "farmer")
	h := middleware.OptionalAuth(http.HandlerFunc(whoami))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-User"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "farmer", w.Header().Get("X-User"))
}

func TestRateLimit(t *testing.T) {
	cache.Use(cache.NewMemoryStore())
	h := middleware.RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.2:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own window")
}

func TestRecovery(t *testing.T) {
	h := middleware.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"status":500`)
}

func TestCORS(t *testing.T) {
	opts := middleware.CORSOptions{
		AllowedOrigins:   []string{"https://dash.darcho.test"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
	}
	h := middleware.CORS(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://dash.darcho.test")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.darcho.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	config.Set("TRUSTED_PROXIES", "")
	t.Cleanup(func() { config.Set("TRUSTED_PROXIES", "") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", middleware.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-Ip", "203.0.113.8")
	assert.Equal(t, "192.0.2.1", middleware.ClientIP(req), "headers from an untrusted peer are ignored")

	config.Set("TRUSTED_PROXIES", "192.0.2.1, 10.0.0.0/8")
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", middleware.ClientIP(req), "rightmost hop that is not a proxy")

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "203.0.113.8", middleware.ClientIP(req))
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	cache.Use(cache.NewMemoryStore())
	config.Set("TRUSTED_PROXIES", "")
	h := middleware.RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for _, fwd := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.50:5555"
		req.Header.Set("X-Forwarded-For", fwd)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestTouchAfterRevokeKeepsTokenDead(t *testing.T) {
	cache.Use(cache.NewMemoryStore())
	rec, pair := login(t, 21, "buyer")

	stale := *rec
	stale.LastSeenAt = stale.LastSeenAt.Add(-2 * time.Minute)
	require.NoError(t, session.Revoke(context.Background(), rec.ID))
	assert.ErrorIs(t, session.Touch(context.Background(), &stale), session.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	middleware.Authenticate(http.HandlerFunc(whoami)).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
