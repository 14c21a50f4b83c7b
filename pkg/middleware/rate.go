// Package middleware holds the HTTP middleware shared by every Darcho route:
// authentication, CORS, request logging, panic recovery and rate limiting.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/darcho/darcho/pkg/cache"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/response"
)

// RateLimit allows max requests per client IP in each fixed window. Counters
// live in pkg/cache so every instance behind a load balancer shares them.
//
//	r.Use(middleware.RateLimit(config.RateLimit(), time.Minute))
func RateLimit(max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			slot := now.Truncate(window)
			key := fmt.Sprintf("darcho:rl:%s:%d", ClientIP(r), slot.Unix())

			n, err := cache.Incr(r.Context(), key, window)
			if err != nil {
				// Fail open.
				logger.WithCtx(r.Context()).Warn("rate limit counter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(max) - n
			if remaining < 0 {
				remaining = 0
			}
			reset := slot.Add(window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if n > int64(max) {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())+1))
				response.TooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
