package interceptor

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ResourceSpec declares what a route operates on. IDParam names the chi URL
// parameter holding the numeric resource id; empty means the route has no id.
// SelfID marks routes whose resource is the caller's own user record.
type ResourceSpec struct {
	Type    string
	IDParam string
	SelfID  bool
}

// RouteTable maps chi route patterns (for example "/api/v1/users/{id}") to
// the resource they operate on. Lookups fall back to InferResource when a
// request matched no declared pattern.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]ResourceSpec
}

func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[string]ResourceSpec)}
}

// Declare registers spec for a full route pattern.
func (t *RouteTable) Declare(pattern string, spec ResourceSpec) *RouteTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[pattern] = spec
	return t
}

// Lookup returns the spec registered for pattern.
func (t *RouteTable) Lookup(pattern string) (ResourceSpec, bool) {
	if t == nil {
		return ResourceSpec{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	spec, ok := t.routes[pattern]
	return spec, ok
}

// Resolve returns the resource for a request that has been routed by chi.
// It must be called after the router has served r.
func (t *RouteTable) Resolve(r *http.Request, selfID int64) (string, *int64, string) {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil {
		pattern := rctx.RoutePattern()
		if spec, ok := t.Lookup(pattern); ok {
			switch {
			case spec.IDParam != "":
				if n, err := strconv.ParseInt(rctx.URLParam(spec.IDParam), 10, 64); err == nil && n > 0 {
					return spec.Type, &n, pattern
				}
			case spec.SelfID && selfID > 0:
				id := selfID
				return spec.Type, &id, pattern
			}
			return spec.Type, nil, pattern
		}
	}
	resourceType, id := InferResource(r.URL.Path)
	return resourceType, id, ""
}
