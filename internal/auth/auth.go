package auth

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
)

// TokenExchanger trades an authorization code and PKCE verifier for stored provider tokens.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*models.ProviderTokenState, error)
}

// SetupRequest is the admin's completion of the PKCE handshake.
type SetupRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	SitePassword string `json:"sitePassword"`
}

// Service ties the setup gate, password credential, and guest sessions together.
type Service struct {
	Gate      *SetupGate
	Passwords *PasswordStore
	Sessions  *SessionManager
	exchanger TokenExchanger
	logger    *log.Logger
}

// NewService creates a [Service].
func NewService(settings models.SettingsStore, sessions *SessionManager, exchanger TokenExchanger, logger *log.Logger) *Service {
	return &Service{
		Gate:      NewSetupGate(settings),
		Passwords: NewPasswordStore(settings),
		Sessions:  sessions,
		exchanger: exchanger,
		logger:    logger,
	}
}

// CompleteSetup exchanges the admin's code, stores the site password, and flips setup to configured.
//
// Setup stays incomplete when any step fails, so the admin can retry.
func (s *Service) CompleteSetup(ctx context.Context, req SetupRequest) error {
	if err := s.Gate.Require(ctx, models.NotConfigured); err != nil {
		return err
	}

	if req.Code == "" || req.CodeVerifier == "" || req.SitePassword == "" {
		return fmt.Errorf("%w: Missing required parameters", shared.ErrValidation)
	}
	if err := ValidatePassword(req.SitePassword); err != nil {
		return err
	}

	if _, err := s.exchanger.ExchangeCode(ctx, req.Code, req.CodeVerifier); err != nil {
		return err
	}

	if err := s.Passwords.Set(ctx, req.SitePassword); err != nil {
		return err
	}

	if err := s.Gate.Complete(ctx); err != nil {
		return err
	}

	s.logger.Info("admin setup complete")
	return nil
}

// Login checks the site password and issues a guest session.
func (s *Service) Login(ctx context.Context, password string) (*models.GuestSession, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: Password is required", shared.ErrValidation)
	}

	if err := s.Passwords.Check(ctx, password); err != nil {
		return nil, err
	}

	session, err := s.Sessions.Issue(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := s.Sessions.SweepExpired(ctx); err != nil {
		s.logger.Warn("failed to sweep expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Debug("swept expired sessions", "count", n)
	}

	s.logger.Info("guest login", "session_id", session.ID, "expires_at", session.ExpiresAt)
	return session, nil
}

// Logout revokes token when present. Always succeeds for unknown tokens.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.Revoke(ctx, token)
}

// ChangePassword replaces the site password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	if err := s.Passwords.Change(ctx, current, next); err != nil {
		return err
	}
	s.logger.Info("site password changed")
	return nil
}
