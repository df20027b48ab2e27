package gateway

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginFetchForwardsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ask", r.URL.Path)
		assert.Equal(t, "voice=1", r.URL.RawQuery)
		assert.Equal(t, `{"q":"why is the sky blue"}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Drop-Me"), "headers named by Connection are hop-by-hop")
		assert.Equal(t, "kids.local", r.Header.Get("X-Forwarded-Host"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "close")
		_, _ = w.Write([]byte(`{"response":"Rayleigh scattering!"}`))
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "http://kids.local/api/ask?voice=1", strings.NewReader(`{"q":"why is the sky blue"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "X-Drop-Me")
	req.Header.Set("X-Drop-Me", "1")

	resp, err := o.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, SourceNetwork, resp.Source)
	assert.Equal(t, `{"response":"Rayleigh scattering!"}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Connection"))
}

func TestOriginFetchDecodesCompressedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "text/javascript")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("console.log('hi')"))
		_ = zw.Close()
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	resp, err := o.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "console.log('hi')", string(resp.Body))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestOriginFetchHeadKeepsContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "1000")
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := o.Fetch(context.Background(), httptest.NewRequest(http.MethodHead, "/story.mp3", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "1000", resp.Header.Get("Content-Length"))
}

func TestOriginFetchKeepsBasePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, r.URL.Path)
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL+"/app/", WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := o.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/manifest.json", nil))
	require.NoError(t, err)
	assert.Equal(t, "/app/manifest.json", string(resp.Body))
}

func TestOriginFetchNonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := o.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.False(t, resp.OK())
}

func TestOriginFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o, err := NewOrigin(url)
	require.NoError(t, err)

	_, err = o.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))

	var ge *Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "fetch /", ge.Op)
}

func TestOriginFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o, err := NewOrigin(srv.URL, WithHTTPClient(srv.Client()), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = o.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/api/tts", nil))
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestNewOriginRejectsRelativeURL(t *testing.T) {
	_, err := NewOrigin("/just/a/path")
	assert.Error(t, err)
}

func TestOriginProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "%s %s", r.Method, r.URL.RequestURI())
	}))
	defer srv.Close()

	o, err := NewOrigin(srv.URL)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	o.Proxy().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_next/webpack-hmr?page=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET /_next/webpack-hmr?page=1", rec.Body.String())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindStore, Op: "match", Err: errors.New("corrupt")})
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "match: store: corrupt")
}
