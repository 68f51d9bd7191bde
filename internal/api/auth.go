package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the app API with the shared token from
// server.api_token. The Twilio webhook is mounted outside this
// middleware and verifies requests on its own.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="secondbrain"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid API token, check server.api_token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
