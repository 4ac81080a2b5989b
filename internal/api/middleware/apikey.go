package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/render"
)

// DefaultAPIKeyHeader is checked when no header name is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyAuth is middleware that validates API key authentication.
//
// When enabled (GENIQ_API_KEYS is set), every request outside the public
// paths must carry a valid key via:
//   - Authorization: Bearer <key>
//   - X-API-Key: <key> (header name configurable)
//
// /health, /version and /metrics are always public.
type APIKeyAuth struct {
	mu      sync.RWMutex
	keys    map[string]bool
	header  string
	enabled bool
}

// NewAPIKeyAuth creates API key auth from the configured keys. Blank keys are
// ignored; with no keys the middleware passes everything through.
func NewAPIKeyAuth(keys []string, header string) *APIKeyAuth {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	auth := &APIKeyAuth{
		keys:   make(map[string]bool, len(keys)),
		header: header,
	}
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			auth.keys[key] = true
			auth.enabled = true
		}
	}
	return auth
}

// Enabled returns whether API key auth is active.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// AddKey adds a new API key at runtime.
func (a *APIKeyAuth) AddKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[key] = true
	a.enabled = true
}

// RemoveKey removes an API key at runtime.
func (a *APIKeyAuth) RemoveKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, key)
	if len(a.keys) == 0 {
		a.enabled = false
	}
}

// Middleware returns an http.Handler middleware that enforces API key auth.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := a.extractAPIKey(r)
		if apiKey == "" {
			respondUnauthorized(w, r, "API key required. Set Authorization: Bearer <key> or "+a.header+" header.")
			return
		}

		// Constant-time comparison
		if !a.validateKey(apiKey) {
			respondUnauthorized(w, r, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) validateKey(candidate string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get(a.header)
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="geniq"`)
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
