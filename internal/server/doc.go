// Package server provides HTTP routing, middleware, and handlers for the gateway.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter]
// wraps an [http.ServeMux]: global [Middleware] wraps the whole mux and route
// middleware wraps a single handler. Unmatched paths answer 404 with a JSON body.
//
// # Endpoints
//
// [NewGateway] registers the public surface:
//
//	GET  /health               liveness, not rate limited
//	GET  /status               {setupComplete}
//	GET  /admin/oauth-url      PKCE pair and authorization URL, before setup only
//	POST /admin/complete-setup code exchange and site password, before setup only
//	POST /guest/login          site password for a guest token, after setup only
//	POST /guest/logout         revoke the caller's token
//	POST /password/change      replace the site password, after setup only
//	ANY  /proxy/{path...}      forward to the provider API with a guest token
//
// Errors are written as {"error": message} with the status chosen by [StatusFor].
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the provider redirect when the CLI runs admin setup on
// the operator's machine. It validates the state parameter, hands the code to
// the caller through a channel, and only processes one callback.
package server
