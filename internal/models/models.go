// package models defines the data model for the gateway
package models

import (
	"fmt"
	"time"
)

// Setting keys.
const (
	KeyAdminSetupComplete = "admin_setup_complete"
	KeyAccessToken        = "spotify_access_token"
	KeyRefreshToken       = "spotify_refresh_token"
	KeyTokenExpiresAt     = "spotify_token_expires_at"
	KeySitePasswordHash   = "site_password_hash"
)

// Setting is a single key/value row.
type Setting struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GuestSession is a bearer session issued to a guest.
//
// A session is live while ExpiresAt is after now.
type GuestSession struct {
	ID         string
	Token      string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// NewGuestSession builds a session that expires ttl after now.
func NewGuestSession(id, token string, now time.Time, ttl time.Duration) *GuestSession {
	now = now.Truncate(time.Millisecond)
	return &GuestSession{
		ID:         id,
		Token:      token,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
	}
}

// Live reports whether the session is still usable at now.
func (s *GuestSession) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// Validate checks the session fields required for persistence.
func (s *GuestSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.Token == "" {
		return fmt.Errorf("session token is required")
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("session must expire after it is created")
	}
	return nil
}

// ProviderTokenState is the provider credential materialized from settings.
//
// Any field may be empty: a refresh can update the access token without a new refresh token.
type ProviderTokenState struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// HasAccessToken reports whether an access token and its expiry are recorded.
func (s ProviderTokenState) HasAccessToken() bool {
	return s.AccessToken != "" && !s.ExpiresAt.IsZero()
}

// SetupState is the one-way admin setup state machine.
type SetupState int

const (
	NotConfigured SetupState = iota
	Configured
)

func (s SetupState) String() string {
	switch s {
	case NotConfigured:
		return "not configured"
	case Configured:
		return "configured"
	default:
		return fmt.Sprintf("SetupState(%d)", int(s))
	}
}

// Millis converts t to unix milliseconds for storage.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts stored unix milliseconds back to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
