// package auth implements the gateway's credentials
//
// It covers the PKCE verifier and challenge used during admin setup,
// the bcrypt site password, HS256 guest session tokens backed by
// the session store, and the one-way setup state gate.
package auth
