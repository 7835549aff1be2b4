package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tunegate/internal/server"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the gateway until SIGINT or SIGTERM, then drains in-flight requests.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	g, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	config := r.config
	if err := config.Validate(); err != nil {
		r.logger.Warn("provider credentials incomplete; admin setup endpoints will fail", "error", err)
	}

	if done, err := g.service.Gate.IsSetupComplete(ctx); err == nil && !done {
		r.logger.Warn("admin setup not complete; run `tunegate setup admin` or use the web flow")
	}

	logger := shared.WithLogger(r.logger, "component", "http")
	proxy := services.NewAPIService(config.Provider.APIBaseURL, g.tokens.HTTPClient(), g.tokens)
	handler := server.NewGateway(server.Options{
		Auth:     g.service,
		Provider: g.tokens,
		Proxy:    proxy,
		Server:   config.Server,
		Limits:   config.Limits,
		Logger:   logger,
	})
	httpServer := server.NewHTTPServer(config.Server, handler)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("gateway listening", "addr", httpServer.Addr, "frontend", config.Server.FrontendURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
