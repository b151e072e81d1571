package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SharedToken checks a static secret sent in the "token" header or the
// ?token= query parameter. With required=false an empty secret disables the
// check; with required=true an empty secret rejects every request.
func SharedToken(secret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if required {
					http.Error(w, "endpoint disabled", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get("token")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
