// Package strategy classifies intercepted requests and maps each class to
// the retrieval strategy that resolves it.
package strategy

import (
	"net/http"
	"path"
	"strings"
)

// Kind is a retrieval strategy
type Kind int

const (
	CacheFirst Kind = iota + 1
	NetworkFirst
	ImageCache
	OfflineFallback
)

func (k Kind) String() string {
	switch k {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case ImageCache:
		return "image-cache"
	case OfflineFallback:
		return "offline-fallback"
	default:
		return "unknown"
	}
}

// Class is the classification of a single request
type Class int

const (
	APINetworkFirst Class = iota + 1
	APICacheFirst
	ScriptOrStyle
	Image
	Navigation
	Default
)

func (c Class) String() string {
	switch c {
	case APINetworkFirst:
		return "api-network-first"
	case APICacheFirst:
		return "api-cache-first"
	case ScriptOrStyle:
		return "script-or-style"
	case Image:
		return "image"
	case Navigation:
		return "navigation"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

// Kind returns the strategy that serves requests of this class
func (c Class) Kind() Kind {
	switch c {
	case APINetworkFirst, Navigation:
		return NetworkFirst
	case APICacheFirst, ScriptOrStyle, Default:
		return CacheFirst
	case Image:
		return ImageCache
	default:
		return CacheFirst
	}
}

// DefaultAPIPrefix marks the origin's API routes
const DefaultAPIPrefix = "/api/"

// DefaultNetworkFirst are the API paths that always prefer fresh data
var DefaultNetworkFirst = []string{"/api/ask", "/api/tts"}

// Rules holds the classification inputs
type Rules struct {
	apiPrefix    string
	networkFirst map[string]struct{}
}

// NewRules builds rules from the network-first allow-list. An empty list
// falls back to DefaultNetworkFirst.
func NewRules(networkFirst []string) Rules {
	if len(networkFirst) == 0 {
		networkFirst = DefaultNetworkFirst
	}
	r := Rules{
		apiPrefix:    DefaultAPIPrefix,
		networkFirst: make(map[string]struct{}, len(networkFirst)),
	}
	for _, p := range networkFirst {
		r.networkFirst[p] = struct{}{}
	}
	return r
}

// IsAPI reports whether p is under the API prefix
func (r Rules) IsAPI(p string) bool {
	return strings.HasPrefix(p, r.apiPrefix)
}

// Classify maps a request to its class; first match wins.
func (r Rules) Classify(req *http.Request) Class {
	p := req.URL.Path
	if r.IsAPI(p) {
		if _, ok := r.networkFirst[p]; ok {
			return APINetworkFirst
		}
		return APICacheFirst
	}

	switch Destination(req) {
	case "script", "style":
		return ScriptOrStyle
	case "image":
		return Image
	}

	if IsNavigation(req) {
		return Navigation
	}
	return Default
}

var extDestinations = map[string]string{
	".js":   "script",
	".mjs":  "script",
	".css":  "style",
	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".gif":  "image",
	".webp": "image",
	".avif": "image",
	".svg":  "image",
	".ico":  "image",
}

// Destination returns the declared resource kind of a request, from
// Sec-Fetch-Dest, or inferred from the path extension when the header is absent.
func Destination(req *http.Request) string {
	if d := strings.ToLower(req.Header.Get("Sec-Fetch-Dest")); d != "" {
		return d
	}
	return extDestinations[strings.ToLower(path.Ext(req.URL.Path))]
}

// IsNavigation reports whether the request is a top-level page load
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}
