package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"log"
	"net/http"
	"strings"
)

// AdminGuard protects mutating routes with a shared bearer token.
// An empty token leaves the routes open, which is only meant for local runs.
type AdminGuard struct {
	digest []byte
}

// NewAdminGuard creates a guard for token
func NewAdminGuard(token string) *AdminGuard {
	if token == "" {
		log.Println("⚠️ ADMIN_TOKEN not set, mutating API routes are open")
		return &AdminGuard{}
	}
	sum := sha256.Sum256([]byte(token))
	return &AdminGuard{digest: sum[:]}
}

// Enabled reports whether a token is required
func (g *AdminGuard) Enabled() bool {
	return g != nil && len(g.digest) > 0
}

// Authorized checks the request's bearer token in constant time
func (g *AdminGuard) Authorized(r *http.Request) bool {
	if !g.Enabled() {
		return true
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	return hmac.Equal(sum[:], g.digest)
}

// Middleware rejects unauthorized requests with 401
func (g *AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorized(r) {
			RecordConnectionRejected("unauthorized")
			w.Header().Set("WWW-Authenticate", `Bearer realm="collision-batcher"`)
			writeError(w, "admin token required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
