package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest site password accepted.
const MinPasswordLength = 8

// hashCost is lowered in tests.
var hashCost = bcrypt.DefaultCost

// ValidatePassword checks length limits before hashing.
//
// The minimum counts characters; the maximum counts bytes, which is what bcrypt accepts.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: Password must be at least %d characters long", shared.ErrValidation, MinPasswordLength)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: Password must be at most 72 bytes long", shared.ErrValidation)
	}
	return nil
}

func passwordRule(password string) string {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Sprintf("must be at least %d characters long", MinPasswordLength)
	}
	return "must be at most 72 bytes long"
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether candidate matches hash. The comparison is constant time.
func VerifyPassword(candidate, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// PasswordStore keeps the site password hash in settings.
type PasswordStore struct {
	settings models.SettingsStore
}

// NewPasswordStore creates a [PasswordStore] over settings.
func NewPasswordStore(settings models.SettingsStore) *PasswordStore {
	return &PasswordStore{settings: settings}
}

// Set validates, hashes and stores password, replacing any previous hash.
func (p *PasswordStore) Set(ctx context.Context, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	return p.settings.Set(ctx, models.KeySitePasswordHash, hash)
}

// Check verifies candidate against the stored hash.
//
// Returns [shared.ErrConfiguration] when no password has been set and [shared.ErrAuth] on mismatch.
func (p *PasswordStore) Check(ctx context.Context, candidate string) error {
	hash, ok, err := p.settings.Get(ctx, models.KeySitePasswordHash)
	if err != nil {
		return err
	}
	if !ok || hash == "" {
		return fmt.Errorf("%w: Site password not configured", shared.ErrConfiguration)
	}

	if !VerifyPassword(candidate, hash) {
		return fmt.Errorf("%w: Invalid password", shared.ErrAuth)
	}
	return nil
}

// Change replaces the site password after re-verifying the current one.
func (p *PasswordStore) Change(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: Current and new password are required", shared.ErrValidation)
	}
	if err := ValidatePassword(next); err != nil {
		return fmt.Errorf("%w: New password %s", shared.ErrValidation, passwordRule(next))
	}

	if err := p.Check(ctx, current); err != nil {
		if errors.Is(err, shared.ErrAuth) {
			return fmt.Errorf("%w: Invalid current password", shared.ErrAuth)
		}
		return err
	}

	return p.Set(ctx, next)
}
