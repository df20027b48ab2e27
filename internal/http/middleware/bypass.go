package middleware

import (
	"net/http"
	"strings"
)

// Bypass sends requests the strategies cannot handle straight to direct:
// connection upgrades (websockets, HMR) and absolute non-http(s) URLs.
func Bypass(direct http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ShouldBypass(r) {
				w.Header().Set("X-Cache-Source", "bypass")
				direct.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ShouldBypass(r *http.Request) bool {
	if r.Header.Get("Upgrade") != "" {
		return true
	}
	if s := strings.ToLower(r.URL.Scheme); s != "" && s != "http" && s != "https" {
		return true
	}
	return false
}
