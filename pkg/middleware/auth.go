package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/auth"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/response"
	"github.com/darcho/darcho/pkg/session"
)

// TokenCookie carries the access token for browser dashboards.
const TokenCookie = "darcho_token"

type identityKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID    uint
	Role      string
	SessionID string
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// UserIDFromCtx returns the caller's user id, or 0.
func UserIDFromCtx(ctx context.Context) uint {
	id, _ := identity(ctx)
	return id.UserID
}

// RoleFromCtx returns the caller's role, or "".
func RoleFromCtx(ctx context.Context) string {
	id, _ := identity(ctx)
	return id.Role
}

// SessionIDFromCtx returns the caller's session id, or "".
func SessionIDFromCtx(ctx context.Context) string {
	id, _ := identity(ctx)
	return id.SessionID
}

// TokenFromRequest reads the bearer token, then the cookie. allowQuery also
// accepts ?token= for websocket clients that cannot set headers.
func TokenFromRequest(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

var errNoToken = errors.New("no token")

func resolve(r *http.Request, allowQuery bool) (Identity, error) {
	raw := TokenFromRequest(r, allowQuery)
	if raw == "" {
		return Identity{}, errNoToken
	}
	claims, err := auth.Parse(raw, auth.TypeAccess)
	if err != nil {
		return Identity{}, err
	}
	rec, err := session.Find(r.Context(), claims.SessionID())
	if err != nil {
		return Identity{}, err
	}
	if rec.UserID != claims.UserID {
		return Identity{}, session.ErrNotFound
	}
	if err := session.Touch(r.Context(), rec); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Identity{}, err
		}
		logger.WithCtx(r.Context()).Warn("session touch failed", "error", err)
	}
	return Identity{UserID: rec.UserID, Role: rec.Role, SessionID: rec.ID}, nil
}

func authenticate(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r, allowQuery)
			if err != nil {
				response.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Authenticate requires a valid access token whose session is still live.
func Authenticate(next http.Handler) http.Handler {
	return authenticate(false)(next)
}

// AuthenticateWS is Authenticate that also accepts ?token=.
func AuthenticateWS(next http.Handler) http.Handler {
	return authenticate(true)(next)
}

// OptionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := resolve(r, false); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the caller address from r. Forwarding headers count
// only when the direct peer is a TRUSTED_PROXIES entry; X-Forwarded-For is
// then read right to left, skipping further trusted hops.
func ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	trusted := trustedProxies()
	if !isTrusted(peer, trusted) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-Ip")); real != "" {
		return real
	}
	return peer
}

func trustedProxies() []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range config.TrustedProxies() {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 8 * net.IPv6len
				if ip.To4() != nil {
					ip, bits = ip.To4(), 8*net.IPv4len
				}
				nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

func isTrusted(addr string, nets []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
