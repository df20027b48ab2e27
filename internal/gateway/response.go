package gateway

import (
	"net/http"
	"time"

	"github.com/briangreenhill/kidbuddy/internal/store"
	"github.com/briangreenhill/kidbuddy/internal/strategy"
)

// Source says where a response came from
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceStale   Source = "stale-cache"
	SourceOffline Source = "offline"
)

// Response is the outcome of resolving one intercepted request
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Source   Source
	Strategy strategy.Kind
}

// OK reports a complete 2xx response, one that may be cached
func (r *Response) OK() bool {
	return store.Complete(r.Status)
}

func (r *Response) entry(req *http.Request, now time.Time) *store.Entry {
	return &store.Entry{
		Method:   http.MethodGet,
		URL:      req.URL.RequestURI(),
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     r.Body,
		StoredAt: now.UTC(),
	}
}

func fromEntry(e *store.Entry, src Source) *Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Response{
		Status: e.Status,
		Header: h,
		Body:   e.Body,
		Source: src,
	}
}

// bare503 is the last resort when nothing else can be produced
func bare503() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"X-Offline": []string{"true"}},
		Source: SourceOffline,
	}
}
