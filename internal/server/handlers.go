package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
)

const (
	maxJSONBody  = 1 << 20
	maxProxyBody = 10 << 20
)

// AuthURLBuilder produces the provider authorization URL for the admin handshake.
type AuthURLBuilder interface {
	Ready() error
	AuthCodeURL(challenge, state string) string
}

// Forwarder relays a request to the provider API.
type Forwarder interface {
	Forward(ctx context.Context, method, subpath, rawQuery string, body io.Reader, header http.Header) (*services.APIResponse, error)
}

// Handlers serves the gateway's endpoints.
type Handlers struct {
	auth     *auth.Service
	provider AuthURLBuilder
	proxy    Forwarder
	logger   *log.Logger
	now      func() time.Time
}

// NewHandlers creates [Handlers].
func NewHandlers(svc *auth.Service, provider AuthURLBuilder, proxy Forwarder, logger *log.Logger) *Handlers {
	return &Handlers{auth: svc, provider: provider, proxy: proxy, logger: logger, now: time.Now}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: Invalid request body", shared.ErrValidation)
	}
	return nil
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Status reports whether admin setup has completed.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	done, err := h.auth.Gate.IsSetupComplete(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setupComplete": done})
}

// OAuthURL starts the admin handshake: a fresh PKCE pair and the authorization URL.
//
// The verifier goes back to the admin's client and is never stored.
func (h *Handlers) OAuthURL(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Ready(); err != nil {
		writeError(w, h.logger, err)
		return
	}

	pkce, err := auth.NewPKCE()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"authUrl":      h.provider.AuthCodeURL(pkce.Challenge, ""),
		"codeVerifier": pkce.Verifier,
	})
}

// CompleteSetup finishes the admin handshake.
func (h *Handlers) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req auth.SetupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.auth.CompleteSetup(r.Context(), req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// GuestLogin exchanges the site password for a guest session token.
func (h *Handlers) GuestLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// GuestLogout revokes the caller's session if it sent one. Always succeeds.
func (h *Handlers) GuestLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.logger.Warn("failed to revoke session", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// ChangePassword replaces the site password.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// Proxy forwards the request under /proxy/ to the provider API and relays the response.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	subpath := r.PathValue("path")
	if subpath == "" {
		writeError(w, h.logger, fmt.Errorf("%w: Missing API path", shared.ErrValidation))
		return
	}

	var body io.Reader
	if r.ContentLength != 0 {
		body = http.MaxBytesReader(w, r.Body, maxProxyBody)
	}
	resp, err := h.proxy.Forward(r.Context(), r.Method, subpath, r.URL.RawQuery, body, r.Header)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	for k, v := range resp.Headers {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
