package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
)

// ErrSessionNotFound is returned when no live session matches a token.
var ErrSessionNotFound = models.ErrSessionNotFound

// GuestSessionRepository persists [models.GuestSession] rows.
type GuestSessionRepository struct {
	db *sql.DB
}

// NewGuestSessionRepository creates a new [GuestSessionRepository] with the given database connection
func NewGuestSessionRepository(db *sql.DB) *GuestSessionRepository {
	return &GuestSessionRepository{db: db}
}

// Create inserts a new session.
func (r *GuestSessionRepository) Create(ctx context.Context, s *models.GuestSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO guest_sessions (id, session_token, created_at, expires_at, last_used_at) VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Token, models.Millis(s.CreatedAt), models.Millis(s.ExpiresAt), models.Millis(s.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Get returns the session for token when it is live at now, else [ErrSessionNotFound].
func (r *GuestSessionRepository) Get(ctx context.Context, token string, now time.Time) (*models.GuestSession, error) {
	query := `
		SELECT id, session_token, created_at, expires_at, last_used_at
		FROM guest_sessions
		WHERE session_token = ? AND expires_at > ?
	`

	var (
		s                             models.GuestSession
		createdAt, expiresAt, lastUse int64
	)

	err := r.db.QueryRowContext(ctx, query, token, models.Millis(now)).
		Scan(&s.ID, &s.Token, &createdAt, &expiresAt, &lastUse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	s.CreatedAt = models.FromMillis(createdAt)
	s.ExpiresAt = models.FromMillis(expiresAt)
	s.LastUsedAt = models.FromMillis(lastUse)

	return &s, nil
}

// Touch sets last_used_at for token.
func (r *GuestSessionRepository) Touch(ctx context.Context, token string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE guest_sessions SET last_used_at = ? WHERE session_token = ?", models.Millis(now), token,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the session for token. Deleting an unknown token is not an error.
func (r *GuestSessionRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM guest_sessions WHERE session_token = ?", token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAll removes every session and returns how many were removed.
func (r *GuestSessionRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM guest_sessions")
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpired removes sessions whose expires_at is strictly before now.
// A session expiring exactly at now is kept.
func (r *GuestSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM guest_sessions WHERE expires_at < ?", models.Millis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

// CountLive returns the number of sessions live at now.
func (r *GuestSessionRepository) CountLive(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guest_sessions WHERE expires_at > ?", models.Millis(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
