// Package repositories implements SQLite persistence for the credential store.
//
// Key Implementations:
//   - [SettingsRepository] : key/value settings (provider tokens, password hash, setup flag)
//   - [GuestSessionRepository] : guest bearer sessions with expiry sweeps
//
// Repositories are constructed with an open *sql.DB and passed into the managers that use them;
// there is no package-level database handle. Session timestamps are stored as unix milliseconds
// so that expiry comparisons happen on integers inside SQLite.
package repositories
