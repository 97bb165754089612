package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth protects routes with the admin password. The password may be
// given as HTTP basic auth (any user name) or as a Bearer token. An empty
// password disables the check.
func AdminAuth(password string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, pass, ok := r.BasicAuth(); ok && matches(pass, password) {
				next.ServeHTTP(w, r)
				return
			}

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				if matches(strings.TrimPrefix(authHeader, "Bearer "), password) {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="RentalDesk Admin"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "Unauthorized"}`))
		})
	}
}

func matches(given, want string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}
