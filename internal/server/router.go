package server

import (
	"net/http"
	"strings"
	"sync"
)

// BasicRouter is a simple HTTP router implementing the [Router] interface.
//
// Uses [http.ServeMux] internally for routing. Global middleware wraps the whole mux, so
// unmatched routes are logged and get CORS headers too.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	notFound    http.Handler

	once    sync.Once
	handler http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		middlewares: []Middleware{},
		notFound:    http.HandlerFunc(NotFound),
	}
}

// Use adds [Middleware] to the router's global stack, applied in the order it's added.
//
// Must be called before the first request is served.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for path. An empty method accepts any method.
//
// route middleware wraps only this handler, inside the global stack.
func (r *BasicRouter) Handle(method, path string, handler http.Handler, route ...Middleware) {
	wrapped := chain(handler, route)

	methodHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if method != "" && !strings.EqualFold(req.Method, method) {
			w.Header().Set("Allow", method)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
			return
		}
		wrapped.ServeHTTP(w, req)
	})

	r.mux.Handle(path, methodHandler)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered with this handler.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.once.Do(func() {
		r.mux.Handle("/", r.notFound)
		r.handler = r.Apply(r.mux)
	})
	r.handler.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered global middleware.
//
// Middleware is applied in reverse order (first added runs outermost).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	return chain(handler, r.middlewares)
}

func chain(handler http.Handler, middlewares []Middleware) http.Handler {
	wrapped := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}
