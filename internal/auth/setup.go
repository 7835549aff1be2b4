package auth

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
)

// SetupGate reads and advances the one-way admin setup state.
type SetupGate struct {
	settings models.SettingsStore
}

// NewSetupGate creates a [SetupGate] over settings.
func NewSetupGate(settings models.SettingsStore) *SetupGate {
	return &SetupGate{settings: settings}
}

// State returns [models.Configured] once the setup flag exists. Its value is not inspected.
func (g *SetupGate) State(ctx context.Context) (models.SetupState, error) {
	ok, err := g.settings.Exists(ctx, models.KeyAdminSetupComplete)
	if err != nil {
		return models.NotConfigured, err
	}
	if ok {
		return models.Configured, nil
	}
	return models.NotConfigured, nil
}

// IsSetupComplete reports whether the state is [models.Configured].
func (g *SetupGate) IsSetupComplete(ctx context.Context) (bool, error) {
	state, err := g.State(ctx)
	if err != nil {
		return false, err
	}
	return state == models.Configured, nil
}

// Require returns [shared.ErrState] unless the current state is want.
func (g *SetupGate) Require(ctx context.Context, want models.SetupState) error {
	state, err := g.State(ctx)
	if err != nil {
		return err
	}
	if state == want {
		return nil
	}

	switch want {
	case models.Configured:
		return fmt.Errorf("%w: Admin setup not complete", shared.ErrState)
	case models.NotConfigured:
		return fmt.Errorf("%w: Admin setup already complete", shared.ErrState)
	default:
		return fmt.Errorf("%w: unknown setup state %v", shared.ErrState, want)
	}
}

// Complete marks setup as done. There is no inverse.
func (g *SetupGate) Complete(ctx context.Context) error {
	return g.settings.Set(ctx, models.KeyAdminSetupComplete, "true")
}
