// package server contains middleware & handlers for the gateway's HTTP surface
package server

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the path patterns it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                                           // Use adds middleware wrapping every request
	Handle(method, path string, handler http.Handler, route ...Middleware) // Handle registers a handler with route-only middleware
	Handler(handler Handler)                                                // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
