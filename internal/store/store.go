// Package store provides the named, versioned stores that hold captured
// request/response pairs for the gateway, behind a pluggable backend.
package store

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned when a store holds no entry for a key
	ErrNotFound = errors.New("cache entry not found")
)

// Entry is a captured response keyed by its request
type Entry struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// OK reports whether the entry captured a complete successful response.
func (e *Entry) OK() bool {
	return e != nil && Complete(e.Status)
}

// Complete reports a 2xx status that carries the whole resource.
// 206 Partial Content is a fragment and is never stored.
func Complete(status int) bool {
	return status >= 200 && status < 300 && status != http.StatusPartialContent
}

// Clone returns a deep copy so callers can't mutate stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// Backend is the persistence layer underneath the Manager
type Backend interface {
	// CreateStore creates the named store if it does not exist yet
	CreateStore(ctx context.Context, name string) error

	// ListStores returns store names, in creation order where the backend records it
	ListStores(ctx context.Context) ([]string, error)

	// DeleteStore removes a store and all of its entries. Missing stores are not an error.
	DeleteStore(ctx context.Context, name string) error

	// Get returns the entry for key or ErrNotFound
	Get(ctx context.Context, storeName, key string) (*Entry, error)

	// Set writes an entry, overwriting any previous one, creating the store if needed
	Set(ctx context.Context, storeName, key string, entry *Entry) error

	Close() error
}

// Key builds the lookup key for a request: method plus request URI.
func Key(r *http.Request) string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + r.URL.RequestURI()
}

// Cacheable reports whether a request may be looked up or written at all.
// Only GET requests are cached.
func Cacheable(r *http.Request) bool {
	return r != nil && (r.Method == "" || r.Method == http.MethodGet)
}

// Names is the current, version-tagged set of store names
type Names struct {
	Static  string
	Dynamic string
	Image   string
}

// NewNames derives the store names for a prefix and version tag,
// e.g. kidbuddy-static-v1.
func NewNames(prefix, version string) Names {
	return Names{
		Static:  prefix + "-static-" + version,
		Dynamic: prefix + "-dynamic-" + version,
		Image:   prefix + "-images-" + version,
	}
}

// AllowList returns the names that survive activation
func (n Names) AllowList() []string {
	return []string{n.Static, n.Dynamic, n.Image}
}

// Store is a handle on one named store
type Store struct {
	name string
	m    *Manager
}

// Name returns the store name
func (s *Store) Name() string {
	return s.name
}

// Match looks up the entry for r in this store
func (s *Store) Match(ctx context.Context, r *http.Request) (*Entry, error) {
	return s.m.Match(ctx, r, s.name)
}

// Put writes the entry for r in the background
func (s *Store) Put(ctx context.Context, r *http.Request, e *Entry) {
	s.m.Put(ctx, s.name, r, e)
}
