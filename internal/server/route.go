package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

type routeConfig struct {
	methods []string
	name    string
}

// RouteOption customises a route registered through Route.
type RouteOption func(*routeConfig)

// WithMethods restricts the route to the given HTTP methods.
func WithMethods(methods ...string) RouteOption {
	return func(cfg *routeConfig) {
		cfg.methods = append(cfg.methods, methods...)
	}
}

// WithName names the route so it can be looked up on the router.
func WithName(name string) RouteOption {
	return func(cfg *routeConfig) {
		cfg.name = name
	}
}

// Route registers handler on router at path.
func Route(router *mux.Router, path string, handler http.HandlerFunc, opts ...RouteOption) *mux.Route {
	cfg := routeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	route := router.HandleFunc(path, handler)
	if len(cfg.methods) > 0 {
		route = route.Methods(cfg.methods...)
	}
	if cfg.name != "" {
		route = route.Name(cfg.name)
	}
	return route
}
