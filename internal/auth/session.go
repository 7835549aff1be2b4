package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the guest session lifetime when none is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

const guestTokenType = "guest"

// GuestClaims are the claims carried by a guest session token.
type GuestClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// SessionOptions configures a [SessionManager].
type SessionOptions struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// SessionManager issues, validates, and revokes guest sessions.
//
// A token is an HS256 JWT whose row must also exist in the store; deleting the row revokes it before exp.
type SessionManager struct {
	store  models.GuestSessionStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a [SessionManager] backed by store.
func NewSessionManager(store models.GuestSessionStore, opts SessionOptions) (*SessionManager, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("%w: session secret is required", shared.ErrConfiguration)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SessionManager{store: store, secret: opts.Secret, ttl: opts.TTL, now: opts.Now}, nil
}

// RandomSecret returns a hex encoded 32-byte secret for deployments that do not configure one.
//
// Sessions signed with it do not survive a restart.
func RandomSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates and stores a new guest session.
func (m *SessionManager) Issue(ctx context.Context) (*models.GuestSession, error) {
	now := m.now().UTC().Truncate(time.Second)
	id := shared.GenerateID()

	claims := GuestClaims{
		Type: guestTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	session := models.NewGuestSession(id, token, now, m.ttl)
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// ParseToken checks the token's signature, algorithm, type, and expiry without touching the store.
func (m *SessionManager) ParseToken(token string) (*GuestClaims, error) {
	var claims GuestClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: Invalid or expired token", shared.ErrAuth)
	}
	if !parsed.Valid || claims.Type != guestTokenType || claims.ID == "" {
		return nil, fmt.Errorf("%w: Invalid or expired token", shared.ErrAuth)
	}

	return &claims, nil
}

// Validate returns the live session for token.
//
// Both a well-formed token and a live stored row are required; either failing yields [shared.ErrAuth].
func (m *SessionManager) Validate(ctx context.Context, token string) (*models.GuestSession, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: Unauthorized", shared.ErrAuth)
	}

	if _, err := m.ParseToken(token); err != nil {
		return nil, err
	}

	session, err := m.store.Get(ctx, token, m.now())
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: Session not found or expired", shared.ErrAuth)
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Touch records use of the session. Callers run it off the request path.
func (m *SessionManager) Touch(ctx context.Context, token string) error {
	return m.store.Touch(ctx, token, m.now())
}

// Revoke deletes the session row. Unknown tokens are not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// SweepExpired deletes sessions that expired before now and returns how many were removed.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
