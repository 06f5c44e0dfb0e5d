package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl adds a Cache-Control header to successful GET and HEAD
// responses.  A zero maxAge turns caching off and sends no-store instead.
func CacheControl(maxAge time.Duration, private bool) func(http.Handler) http.Handler {
	value := "no-store"
	if seconds := int(maxAge.Seconds()); seconds > 0 {
		scope := "public"
		if private {
			scope = "private"
		}
		value = fmt.Sprintf("%s, max-age=%d", scope, seconds)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
