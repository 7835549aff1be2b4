package models

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by [GuestSessionStore.Get] when no live session matches.
var ErrSessionNotFound = errors.New("session not found")

// SettingsStore is the key/value side of the credential store.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// GuestSessionStore is the session table of the credential store.
type GuestSessionStore interface {
	Create(ctx context.Context, s *GuestSession) error
	Get(ctx context.Context, token string, now time.Time) (*GuestSession, error) // Get returns only live sessions
	Touch(ctx context.Context, token string, now time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
