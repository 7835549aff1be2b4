package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Status is the snapshot printed by the status command. It doubles as the --json payload.
type Status struct {
	SetupComplete   bool       `json:"setupComplete"`
	HasAccessToken  bool       `json:"hasAccessToken"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	TokenExpiresAt  *time.Time `json:"tokenExpiresAt,omitempty"`
	NeedsRefresh    bool       `json:"needsRefresh"`
	LiveSessions    int        `json:"liveSessions"`
	ProviderReady   bool       `json:"providerReady"`
	ProviderError   string     `json:"providerError,omitempty"`
	Database        string     `json:"database"`
}

// StatusView renders a [Status] relative to now.
type StatusView struct {
	status  Status
	now     time.Time
	palette *Palette
}

func NewStatusView(status Status, now time.Time) *StatusView {
	return &StatusView{status: status, now: now, palette: styles}
}

func (v *StatusView) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, v.palette.label.Render(label), value)
}

func (v *StatusView) yes(ok bool, yes, no string) string {
	if ok {
		return v.palette.ok.Render(yes)
	}
	return v.palette.warn.Render(no)
}

// expiry describes the token expiry as a relative duration.
func (v *StatusView) expiry() string {
	s := v.status
	if s.TokenExpiresAt == nil {
		return v.palette.warn.Render("unknown")
	}

	delta := s.TokenExpiresAt.Sub(v.now).Round(time.Second)
	at := s.TokenExpiresAt.Local().Format(time.DateTime)
	switch {
	case delta <= 0:
		return v.palette.err.Render(fmt.Sprintf("expired %v ago (%s)", -delta, at))
	case s.NeedsRefresh:
		return v.palette.warn.Render(fmt.Sprintf("in %v, due for refresh (%s)", delta, at))
	default:
		return v.palette.ok.Render(fmt.Sprintf("in %v (%s)", delta, at))
	}
}

func (v *StatusView) Render() string {
	s := v.status
	rows := []string{
		v.palette.title.Render("Gateway status"),
		v.row("Database", s.Database),
		v.row("Admin setup", v.yes(s.SetupComplete, "complete", "not complete")),
		v.row("Provider config", v.yes(s.ProviderReady, "ok", s.ProviderError)),
		v.row("Access token", v.yes(s.HasAccessToken, "stored", "missing")),
		v.row("Refresh token", v.yes(s.HasRefreshToken, "stored", "missing")),
		v.row("Token expires", v.expiry()),
		v.row("Guest sessions", fmt.Sprintf("%d live", s.LiveSessions)),
	}

	if !s.SetupComplete {
		rows = append(rows, "", v.palette.help.Render("Run `tunegate setup admin --password <password>` to link an account."))
	}

	return strings.Join(rows, "\n") + "\n"
}
