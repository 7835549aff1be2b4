package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/server"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.config == nil {
		configPath := cmd.String("config")
		if _, err := os.Stat(configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", configPath)
			if err := shared.CreateConfigFile(configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", configPath)
			}
		}
	}

	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupRollback rolls back the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolveConfig(cmd)
	if err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, err := shared.RollbackMigration(ctx, db)
	if errors.Is(err, shared.ErrNoMigrations) {
		return r.writePlain("Nothing to roll back\n")
	}
	if err != nil {
		return err
	}

	r.logger.Info("rolled back migration", "version", version)
	return r.writePlain("✓ Rolled back migration %04d\n", version)
}

// SetupAdmin runs the PKCE admin handshake from the operator's machine.
//
// A temporary server on the redirect URI's host receives the code, which is exchanged
// with the locally held verifier before the site password is stored.
func (r *Runner) SetupAdmin(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.service.Gate.Require(ctx, models.NotConfigured); err != nil {
		return err
	}
	if err := g.tokens.Ready(); err != nil {
		return err
	}

	password := cmd.String("password")
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	code, verifier, err := r.doOAuth(ctx, g, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	if err := g.service.CompleteSetup(ctx, auth.SetupRequest{Code: code, CodeVerifier: verifier, SitePassword: password}); err != nil {
		return err
	}

	r.writePlainln("✓ Spotify account linked")
	return r.writePlain("✓ Site password set\n\nGuests can now log in through the gateway.\n")
}

// doOAuth opens the authorization page and waits for the provider to redirect back with a code.
func (r *Runner) doOAuth(ctx context.Context, g *gateway, timeout time.Duration) (code, verifier string, err error) {
	pkce, err := auth.NewPKCE()
	if err != nil {
		return "", "", err
	}
	state := shared.GenerateID()

	redirect, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid redirect uri: %w", shared.ErrConfiguration, err)
	}

	oauthHandler, err := server.NewOAuthHandler(redirect.String(), state)
	if err != nil {
		return "", "", err
	}
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", "", fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := g.tokens.AuthCodeURL(pkce.Challenge, state)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.browser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return "", "", fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return "", "", fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return "", "", ctx.Err()
	}

	if result.Error() != nil {
		return "", "", fmt.Errorf("authorization failed: %w", result.Error())
	}

	return result.Code, pkce.Verifier, nil
}
