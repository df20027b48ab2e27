// Package gateway resolves intercepted requests with the cache-first,
// network-first, image-cache and offline-fallback strategies, and drives the
// install/activate lifecycle of the versioned stores.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
	"github.com/briangreenhill/kidbuddy/internal/store"
	"github.com/briangreenhill/kidbuddy/internal/strategy"
)

// Response headers describing how a request was resolved
const (
	HeaderStrategy = "X-Cache-Strategy"
	HeaderSource   = "X-Cache-Source"
)

type Gateway struct {
	stores *store.Manager
	names  store.Names
	rules  strategy.Rules
	origin Fetcher
	proxy  http.Handler
	log    zerolog.Logger
	now    func() time.Time

	// controlling is set once activation has claimed clients
	controlling atomic.Bool
}

type Options struct {
	Stores *store.Manager
	Names  store.Names
	Rules  strategy.Rules
	Origin Fetcher
	// Proxy serves requests while the gateway is not controlling. Optional.
	Proxy  http.Handler
	Logger zerolog.Logger
}

func New(opts Options) *Gateway {
	return &Gateway{
		stores: opts.Stores,
		names:  opts.Names,
		rules:  opts.Rules,
		origin: opts.Origin,
		proxy:  opts.Proxy,
		log:    opts.Logger.With().Str("component", "gateway").Logger(),
		now:    time.Now,
	}
}

// Names returns the current store names
func (g *Gateway) Names() store.Names {
	return g.names
}

// Controlling reports whether requests are resolved through the strategies
func (g *Gateway) Controlling() bool {
	return g.controlling.Load()
}

func (g *Gateway) claim() {
	g.controlling.Store(true)
}

// Handle resolves r. It always returns a response; strategy errors end in
// the offline fallback and panics are recovered.
func (g *Gateway) Handle(ctx context.Context, r *http.Request) (resp *Response) {
	log := g.log.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("request handling panicked")
			resp = g.offlineFallback(ctx, r, log)
		}
		metrics.Requests.WithLabelValues(resp.Strategy.String(), string(resp.Source)).Inc()
	}()

	class := g.rules.Classify(r)
	kind := class.Kind()

	var err error
	switch kind {
	case strategy.NetworkFirst:
		resp, err = g.networkFirst(ctx, r)
	case strategy.ImageCache:
		resp, err = g.cacheFirst(ctx, r, g.names.Image)
	case strategy.CacheFirst:
		resp, err = g.cacheFirst(ctx, r, g.storeFor(class))
	case strategy.OfflineFallback:
		err = &Error{Kind: KindNotCached, Op: "dispatch"}
	}
	if err != nil {
		log.Debug().Err(err).Stringer("class", class).Str("kind", KindOf(err).String()).Msg("strategy failed, using offline fallback")
		return g.offlineFallback(ctx, r, log)
	}
	resp.Strategy = kind
	return resp
}

func (g *Gateway) storeFor(class strategy.Class) string {
	if class == strategy.ScriptOrStyle {
		return g.names.Static
	}
	return g.names.Dynamic
}

// cacheFirst answers from the cache when any store holds r, looking in
// storeName first. On a miss it fetches and writes the response to storeName.
func (g *Gateway) cacheFirst(ctx context.Context, r *http.Request, storeName string) (*Response, error) {
	if e, err := g.stores.MatchAll(ctx, r, storeName); err == nil {
		return fromEntry(e, SourceCache), nil
	}

	resp, err := g.origin.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		g.stores.Put(ctx, storeName, r, resp.entry(r, g.now()))
	}
	return resp, nil
}

// networkFirst prefers the origin, writing fresh responses to the dynamic
// store, and falls back to a stale cached copy when the fetch fails.
func (g *Gateway) networkFirst(ctx context.Context, r *http.Request) (*Response, error) {
	resp, fetchErr := g.origin.Fetch(ctx, r)
	if fetchErr == nil {
		if resp.OK() {
			g.stores.Put(ctx, g.names.Dynamic, r, resp.entry(r, g.now()))
		}
		return resp, nil
	}

	e, err := g.stores.Match(ctx, r, g.names.Dynamic)
	switch {
	case err == nil:
		return fromEntry(e, SourceStale), nil
	case errors.Is(err, store.ErrNotFound):
		return nil, fetchErr
	default:
		return nil, &Error{Kind: KindStore, Op: "network-first", Err: errors.Join(fetchErr, err)}
	}
}

// offlineFallback serves any cached copy of r, dynamic store first, then
// synthesizes an offline response. It never fails.
func (g *Gateway) offlineFallback(ctx context.Context, r *http.Request, log zerolog.Logger) (resp *Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("offline fallback panicked")
			resp = bare503()
		}
		resp.Strategy = strategy.OfflineFallback
	}()

	if e, err := g.stores.MatchAll(ctx, r, g.names.Dynamic); err == nil {
		return fromEntry(e, SourceCache)
	}

	resp, err := g.synthesize(r)
	if err != nil {
		log.Error().Err(err).Msg("offline synthesis failed")
		return bare503()
	}
	return resp
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.Controlling() && g.proxy != nil {
		g.proxy.ServeHTTP(w, r)
		return
	}

	resp := g.Handle(r.Context(), r)

	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	h.Set(HeaderStrategy, resp.Strategy.String())
	h.Set(HeaderSource, string(resp.Source))
	if r.Method == http.MethodHead {
		if h.Get("Content-Length") == "" {
			h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		}
		w.WriteHeader(resp.Status)
		return
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("write response")
	}
}
