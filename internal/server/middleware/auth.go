package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authExempt lists endpoints that load balancers and Prometheus hit without
// credentials.
var authExempt = map[string]struct{}{
	"/api/health": {},
	"/metrics":    {},
}

// Auth validates API requests against a static key. Clients may present it as
// a Bearer token, an X-API-Key header, or an api_key query parameter; the
// last form exists because browser WebSocket clients cannot set headers on
// the upgrade request. An empty configured key disables authentication.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, exempt := authExempt[r.URL.Path]; exempt || apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := clientToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			// Constant-time compare; the key is a shared secret.
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientToken extracts the presented credential, preferring headers over the
// query string.
func clientToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, rest, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return r.URL.Query().Get("api_key")
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
