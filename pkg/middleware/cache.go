package middleware

import "net/http"

// NoStore marks responses as uncacheable. Cart payloads are per-user and
// change on every mutation, so neither browsers nor proxies may keep them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
