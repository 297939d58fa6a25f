package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

type contextKeyType string

const callerKey contextKeyType = "caller"

// Default role assigned when the gateway forwards no role header.
const RoleUser = "user"

// Caller is the identity the gateway resolved for the request. Authenticated
// callers are keyed by user ID; anonymous callers fall back to the client IP
// so per-caller limits still apply.
type Caller struct {
	Key       string
	Role      string
	Locale    string
	SessionID string
	Anonymous bool
}

// Identity resolves the caller from the forwarded headers and stores it in
// the request context. It never rejects a request; missing headers produce an
// anonymous IP-keyed caller.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := Caller{
				Key:       r.Header.Get("X-User-ID"),
				Role:      r.Header.Get("X-User-Role"),
				Locale:    parseLocale(r.Header.Get("Accept-Language")),
				SessionID: r.Header.Get("X-Session-ID"),
			}
			if caller.Key == "" {
				caller.Key = "ip:" + clientIP(r)
				caller.Anonymous = true
			}
			if caller.Role == "" {
				caller.Role = RoleUser
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the caller resolved by the Identity middleware.
// The zero Caller is returned when the middleware did not run.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey).(Caller); ok {
		return c
	}
	return Caller{}
}

// RequireRole rejects requests whose caller holds none of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if _, ok := roleSet[caller.Role]; !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error": map[string]string{
						"code":    "FORBIDDEN",
						"message": "insufficient permissions",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseLocale takes the first language tag from an Accept-Language header,
// ignoring quality weights. Empty input defaults to "en".
func parseLocale(header string) string {
	if header == "" {
		return "en"
	}
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" {
		return "en"
	}
	return tag
}
