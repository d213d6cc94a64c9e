// Package middleware holds the HTTP middleware shared by the AIBBOT routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/DonggunSe0/aibbot/internal/identity"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsMaxAge  = "600"
)

// The chat page sends JSON bodies and names its tab in a custom header.
var corsHeaders = strings.Join([]string{"Content-Type", identity.SessionHeaderName}, ", ")

// CORS lets the chat page call the API from the given origins. "*" accepts
// any origin but never grants credentials, so the device cookie only travels
// to origins listed explicitly. Preflight requests are answered here.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	trusted := make(map[string]bool, len(allowedOrigins))
	anyOrigin := false
	for _, o := range allowedOrigins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		trusted[strings.TrimSuffix(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" {
				explicit := trusted[origin]
				if explicit || anyOrigin {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
				if explicit {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
