package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// allowedRequestHeaders are the headers clients may send cross-origin
const allowedRequestHeaders = "Content-Type, token, X-Share-Token, Authorization"

// corsMiddleware applies the gateway's CORS policy: credentialed requests
// from gratheon.com subdomains, local development hosts on any port, and the
// desktop app's tauri origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowedRequestHeaders)
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed decides whether an origin may use the gateway
func originAllowed(origin string) bool {
	if origin == "tauri://localhost" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := u.Hostname()
	if host == "localhost" || host == "0.0.0.0" {
		return true
	}
	return host == "gratheon.com" || strings.HasSuffix(host, ".gratheon.com")
}
