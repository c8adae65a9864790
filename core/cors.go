package core

import (
	"fmt"
	"net/http"
	"strings"
)

// CORSMiddleware wraps a handler with origin checking and preflight
// handling for the browser consoles that talk to this server's API.
//
// Origin patterns supported:
//   - exact origins ("https://console.kolosal.ai")
//   - all origins ("*")
//   - wildcard subdomains ("https://*.kolosal.ai")
//   - wildcard ports ("http://localhost:*", for local dev servers)
//
// Preflight OPTIONS requests are answered directly with 204 and never reach
// the wrapped handler.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			setCORSHeaders(w, r, config, true)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ApplyCORS sets CORS headers on w without the middleware wrapper, for
// handlers with their own ordering needs (SSE streams that write headers
// early, conditional application).
func ApplyCORS(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	if !config.Enabled {
		return
	}
	setCORSHeaders(w, r, config, false)
}

// setCORSHeaders writes the response headers for an allowed origin. MaxAge
// only matters for preflight caching, so it is skipped on the direct path.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig, includeMaxAge bool) {
	origin := r.Header.Get("Origin")
	if !isOriginAllowed(origin, config.AllowedOrigins) {
		return
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(config.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
	}
	if len(config.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
	}
	if len(config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
	}
	if includeMaxAge && config.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", fmt.Sprintf("%d", config.MaxAge))
	}
}

// isOriginAllowed reports whether origin matches any allowed pattern. An
// empty origin (same-origin request, non-browser client) is never a match:
// such requests need no CORS headers at all.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}

		// Wildcard subdomain: "https://*.kolosal.ai" matches any depth of
		// subdomain but not the bare root domain.
		if idx := strings.Index(allowed, "*."); idx >= 0 {
			before := allowed[:idx]
			after := allowed[idx+2:]
			if !strings.HasPrefix(origin, before) || !strings.HasSuffix(origin, after) {
				continue
			}
			subdomain := strings.TrimSuffix(origin[len(before):], after)
			if len(subdomain) > 0 && strings.HasSuffix(subdomain, ".") {
				return true
			}
			continue
		}

		// Wildcard port: "http://localhost:*" matches any port on that host.
		if base, ok := strings.CutSuffix(allowed, ":*"); ok {
			if strings.HasPrefix(origin, base+":") {
				return true
			}
		}
	}

	return false
}

// DefaultCORSConfig is CORS off: origins must be configured explicitly
// before the server answers cross-origin requests.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:          false,
		AllowedOrigins:   []string{},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{},
		AllowCredentials: false,
		MaxAge:           86400,
	}
}

// DevelopmentCORSConfig allows everything. Local development only — it
// disables the protection CORS exists to provide.
func DevelopmentCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}
