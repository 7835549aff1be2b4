// Package services talks to the Spotify accounts service and Web API.
//
// # Token Manager
//
// [TokenManager] owns the deployment's one provider credential. It builds the
// authorization URL for the PKCE admin handshake, exchanges the returned code,
// and keeps the stored access token fresh. A token within [RefreshMargin] of
// expiring is refreshed before use. Concurrent refreshes in one process share a
// single provider call through [singleflight.Group]; separate processes do not
// coordinate and the last write wins.
//
// Provider failures surface as [*shared.UpstreamError] carrying the provider's
// status and body. A refresh needed with no stored refresh token is
// [shared.ErrNoRefreshToken].
//
// # Proxy
//
// [APIService] forwards a guest request to the Web API with the server-held
// token and relays status, content type, and body unchanged.
package services
