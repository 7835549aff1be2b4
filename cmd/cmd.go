// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "tunegate",
		Usage:   "Password-gated Spotify API gateway",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("TUNEGATE_CONFIG"),
			},
		},
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, statusCommand, passwordCommand, sessionsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// serveCommand runs the HTTP gateway
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP gateway until interrupted",
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for the database and the admin handshake.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
			{
				Name:  "admin",
				Usage: "Link the Spotify account from this machine and set the site password",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Site password guests will log in with",
						Sources:  cli.EnvVars("TUNEGATE_SITE_PASSWORD"),
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser authorization",
						Value: 2 * time.Minute,
					},
				},
				Action: r.SetupAdmin,
			},
		},
	}
}

// statusCommand reports setup state, token expiry and sessions
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show setup state, provider token expiry and live guest sessions",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Indent JSON output",
			},
		},
		Action: r.Status,
	}
}

// passwordCommand handles operator-side site password maintenance
func passwordCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "Site password maintenance",
		Commands: []*cli.Command{
			{
				Name:  "reset",
				Usage: "Replace the site password without the current one",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "New site password",
						Sources:  cli.EnvVars("TUNEGATE_SITE_PASSWORD"),
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "revoke-sessions",
						Usage: "Also log out every guest",
					},
				},
				Action: r.PasswordReset,
			},
		},
	}
}

// sessionsCommand handles guest session maintenance
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Guest session maintenance",
		Commands: []*cli.Command{
			{
				Name:   "sweep",
				Usage:  "Delete expired guest sessions",
				Action: r.SessionsSweep,
			},
			{
				Name:   "revoke-all",
				Usage:  "Delete every guest session",
				Action: r.SessionsRevokeAll,
			},
		},
	}
}
