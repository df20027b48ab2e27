package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBypass(t *testing.T) {
	direct := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("direct")) })
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("gateway")) })
	h := Bypass(direct)(next)

	tests := []struct {
		name string
		req  func() *http.Request
		want string
	}{
		{"plain", func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) }, "gateway"},
		{"absolute https", func() *http.Request { return httptest.NewRequest(http.MethodGet, "https://kids.local/", nil) }, "gateway"},
		{"websocket upgrade", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/_next/webpack-hmr", nil)
			r.Header.Set("Connection", "Upgrade")
			r.Header.Set("Upgrade", "websocket")
			return r
		}, "direct"},
		{"extension scheme", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.URL = &url.URL{Scheme: "chrome-extension", Host: "abc", Path: "/x.js"}
			return r
		}, "direct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}
