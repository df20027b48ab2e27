package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
)

// Fetcher performs the outbound network fetch for a request
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
}

// Origin fetches from the application origin
type Origin struct {
	http    *http.Client
	baseURL *url.URL
	timeout time.Duration
}

type Option func(*Origin)

func WithHTTPClient(h *http.Client) Option {
	return func(o *Origin) { o.http = h }
}

// WithTimeout bounds each fetch. Zero means no gateway-imposed timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Origin) { o.timeout = d }
}

func NewOrigin(rawBase string, opts ...Option) (*Origin, error) {
	u, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("parse origin url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("origin url must be absolute")
	}
	o := &Origin{
		http:    http.DefaultClient,
		baseURL: u,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Hop-by-hop headers are never forwarded in either direction
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func (o *Origin) target(r *http.Request) string {
	u := *o.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + r.URL.Path
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

// Fetch forwards r to the origin and reads the whole response body.
// Only transport failures are returned as errors. HEAD responses keep the
// origin's Content-Length.
func (o *Origin) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(ctx, method, o.target(r), body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: "build request", Err: err}
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	stripHopHeaders(req.Header)
	// the transport negotiates compression itself and hands back decoded bodies
	req.Header.Del("Accept-Encoding")
	req.ContentLength = r.ContentLength
	if r.Host != "" {
		req.Header.Set("X-Forwarded-Host", r.Host)
	}

	start := time.Now()
	resp, err := o.http.Do(req)
	if err != nil {
		metrics.FetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, &Error{Kind: KindNetwork, Op: "fetch " + r.URL.Path, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, &Error{Kind: KindNetwork, Op: "read " + r.URL.Path, Err: err}
	}
	metrics.FetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	h := resp.Header.Clone()
	stripHopHeaders(h)
	if method != http.MethodHead {
		h.Del("Content-Length")
	}
	return &Response{
		Status: resp.StatusCode,
		Header: h,
		Body:   b,
		Source: SourceNetwork,
	}, nil
}

// Proxy returns a streaming reverse proxy to the origin for traffic that
// bypasses the strategies.
func (o *Origin) Proxy() http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(o.baseURL)
			pr.SetXForwarded()
		},
		Transport: o.http.Transport,
	}
}
