package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestStatusView(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Render", func(t *testing.T) {
		t.Run("shows setup hint when not configured", func(t *testing.T) {
			out := NewStatusView(Status{Database: "gate.db", ProviderError: "client_id missing"}, now).Render()

			for _, want := range []string{"Gateway status", "gate.db", "not complete", "client_id missing", "unknown", "0 live", "setup admin"} {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
		})

		t.Run("shows live token", func(t *testing.T) {
			expires := now.Add(time.Hour)
			out := NewStatusView(Status{
				SetupComplete:   true,
				HasAccessToken:  true,
				HasRefreshToken: true,
				ProviderReady:   true,
				TokenExpiresAt:  &expires,
				LiveSessions:    3,
			}, now).Render()

			if !strings.Contains(out, "in 1h0m0s") {
				t.Errorf("expected relative expiry, got:\n%s", out)
			}
			if !strings.Contains(out, "3 live") {
				t.Errorf("expected session count, got:\n%s", out)
			}
			if strings.Contains(out, "setup admin") {
				t.Errorf("did not expect setup hint once configured, got:\n%s", out)
			}
		})

		t.Run("shows expired token", func(t *testing.T) {
			expires := now.Add(-90 * time.Second)
			out := NewStatusView(Status{SetupComplete: true, TokenExpiresAt: &expires, NeedsRefresh: true}, now).Render()

			if !strings.Contains(out, "expired 1m30s ago") {
				t.Errorf("expected expired notice, got:\n%s", out)
			}
		})

		t.Run("shows refresh due", func(t *testing.T) {
			expires := now.Add(2 * time.Minute)
			out := NewStatusView(Status{SetupComplete: true, TokenExpiresAt: &expires, NeedsRefresh: true}, now).Render()

			if !strings.Contains(out, "due for refresh") {
				t.Errorf("expected refresh notice, got:\n%s", out)
			}
		})
	})

	t.Run("Palette", func(t *testing.T) {
		p := NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")
		for name, style := range map[string]lipgloss.Style{"ok": p.ok, "err": p.err, "warn": p.warn, "label": p.label} {
			if got := style.Render("text"); !strings.Contains(got, "text") {
				t.Errorf("%s style dropped text: %q", name, got)
			}
		}
		if got := p.label.GetWidth(); got != 18 {
			t.Errorf("expected label width 18, got %d", got)
		}
	})
}
