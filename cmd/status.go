package main

import (
	"context"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/ui"
	"github.com/urfave/cli/v3"
)

// Status prints setup state, provider credential health, and the live guest session count.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	now := time.Now()
	status := ui.Status{Database: r.config.Database.Path, ProviderReady: true}

	if status.SetupComplete, err = g.service.Gate.IsSetupComplete(ctx); err != nil {
		return err
	}
	if err := g.tokens.Ready(); err != nil {
		status.ProviderReady, status.ProviderError = false, err.Error()
	}

	state, err := g.tokens.State(ctx)
	if err != nil {
		return err
	}
	status.HasAccessToken = state.AccessToken != ""
	status.HasRefreshToken = state.RefreshToken != ""
	status.NeedsRefresh = g.tokens.NeedsRefresh(state)
	if !state.ExpiresAt.IsZero() {
		status.TokenExpiresAt = &state.ExpiresAt
	}

	if status.LiveSessions, err = g.sessions.CountLive(ctx, now); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", ui.NewStatusView(status, now).Render())
}

// PasswordReset replaces the site password without the current one. Requires shell access to the host.
func (r *Runner) PasswordReset(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.service.Gate.Require(ctx, models.Configured); err != nil {
		return err
	}
	if err := g.service.Passwords.Set(ctx, cmd.String("password")); err != nil {
		return err
	}
	r.logger.Info("site password reset")

	if cmd.Bool("revoke-sessions") {
		n, err := g.sessions.DeleteAll(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("revoked guest sessions", "count", n)
		return r.writePlain("✓ Site password updated, %d guest sessions revoked\n", n)
	}

	return r.writePlain("✓ Site password updated\n")
}

// SessionsSweep deletes expired guest sessions.
func (r *Runner) SessionsSweep(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	n, err := g.manager.SweepExpired(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Removed %d expired sessions\n", n)
}

// SessionsRevokeAll deletes every guest session, logging all guests out.
func (r *Runner) SessionsRevokeAll(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	n, err := g.sessions.DeleteAll(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Revoked %d sessions\n", n)
}
