package auth

import (
	"crypto/subtle"
	"net/http"
)

// TokenMiddleware enforces a fixed token in header X-API-Token. An empty
// expected token locks the routes entirely.
func TokenMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "ops token not configured", http.StatusUnauthorized)
				return
			}
			got := r.Header.Get("X-API-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
