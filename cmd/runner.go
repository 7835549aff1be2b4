package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/repositories"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	browser    func(url string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is resolved from the --config flag, .env, and the environment when a command runs.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Browser    func(url string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		browser:    opts.Browser,
	}
}

// gateway is the set of components a command works with, backed by one database handle.
type gateway struct {
	db       *sql.DB
	settings *repositories.SettingsRepository
	sessions *repositories.GuestSessionRepository
	tokens   *services.TokenManager
	manager  *auth.SessionManager
	service  *auth.Service
}

func (g *gateway) Close() error {
	return g.db.Close()
}

// resolveConfig returns the injected config, or loads it from the --config flag.
func (r *Runner) resolveConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config == nil {
		path := cmd.String("config")
		if path == "" {
			path = r.configPath
		}

		config, err := shared.ResolveConfig(path)
		if err != nil {
			return nil, err
		}
		r.config, r.configPath = config, path
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	return r.config, nil
}

// open resolves config, opens and migrates the database, and builds the gateway components.
func (r *Runner) open(ctx context.Context, cmd *cli.Command) (*gateway, error) {
	config, err := r.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	secret := []byte(config.Session.Secret)
	if len(secret) == 0 {
		r.logger.Warn("session secret not configured, generating one; guest sessions will not survive a restart")
		if secret, err = auth.RandomSecret(); err != nil {
			db.Close()
			return nil, err
		}
	}

	g := &gateway{
		db:       db,
		settings: repositories.NewSettingsRepository(db),
		sessions: repositories.NewGuestSessionRepository(db),
	}

	g.manager, err = auth.NewSessionManager(g.sessions, auth.SessionOptions{Secret: secret, TTL: config.Session.TTL})
	if err != nil {
		db.Close()
		return nil, err
	}

	g.tokens = services.NewTokenManager(g.settings, config.Credentials.Spotify, config.Provider, shared.WithLogger(r.logger, "component", "tokens"))
	g.service = auth.NewService(g.settings, g.manager, g.tokens, shared.WithLogger(r.logger, "component", "auth"))

	return g, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
