package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireAPIKey guards admin routes with a shared key carried in the
// X-API-Key header. An empty configured key disables the check so
// single-operator deployments can skip key management.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				provided := r.Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"success": false, "error": "unauthorized", "message": "missing or invalid api key"}`))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
