// Package models defines the persisted entities and derived state of the gateway.
//
// Persisted:
//   - [Setting] : one row of the key/value settings table
//   - [GuestSession] : a bearer session issued to a guest after the site password check
//
// Derived:
//   - [ProviderTokenState] : provider access/refresh token and expiry, read from three settings
//   - [SetupState] : whether the one-time admin handshake has completed
//
// The setting keys used by the gateway are declared here as constants so that every reader and
// writer agrees on them.
package models
