// Spotify provider token management
//
// Endpoints follow https://developer.spotify.com/documentation/web-api/tutorials/code-pkce-flow
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// RefreshMargin is how long before expiry an access token is treated as stale.
const RefreshMargin = 5 * time.Minute

const defaultProviderTimeout = 15 * time.Second

// DefaultScopes is the scope set requested during admin setup.
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-read-recently-played",
	"user-top-read",
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-follow-read",
	"user-follow-modify",
	"streaming",
	"user-read-playback-position",
	"ugc-image-upload",
}

// TokenManager holds the deployment's single provider credential.
//
// It produces the authorization URL, exchanges the admin's code, and keeps the stored
// access token fresh. Concurrent refreshes within the process collapse into one provider call.
type TokenManager struct {
	config   *oauth2.Config
	client   *http.Client
	settings models.SettingsStore
	logger   *log.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewTokenManager creates a [TokenManager] for the configured Spotify application.
//
// Empty provider URLs fall back to the public Spotify endpoints.
func NewTokenManager(settings models.SettingsStore, creds shared.SpotifyConfig, provider shared.ProviderConfig, logger *log.Logger) *TokenManager {
	authURL, tokenURL := provider.AuthURL, provider.TokenURL
	if authURL == "" {
		authURL = spotifyAuthURL
	}
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &TokenManager{
		config:   config,
		client:   &http.Client{Timeout: timeout},
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// HTTPClient returns the timeout-bounded client used for provider calls.
func (m *TokenManager) HTTPClient() *http.Client {
	return m.client
}

// Ready reports missing client credentials as [shared.ErrConfiguration].
func (m *TokenManager) Ready() error {
	if m.config.ClientID == "" || m.config.RedirectURL == "" {
		return fmt.Errorf("%w: Spotify configuration missing", shared.ErrConfiguration)
	}
	return nil
}

// AuthCodeURL returns the authorization URL carrying the S256 challenge. An empty state is omitted.
func (m *TokenManager) AuthCodeURL(challenge, state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)
}

// ExchangeCode trades an authorization code and its verifier for tokens and stores them.
//
// The code is single use; a provider rejection is returned as [*shared.UpstreamError].
func (m *TokenManager) ExchangeCode(ctx context.Context, code, verifier string) (*models.ProviderTokenState, error) {
	if err := m.Ready(); err != nil {
		return nil, err
	}

	token, err := m.config.Exchange(m.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, upstreamError("code exchange", err)
	}

	state := m.stateFrom(token, "")
	if err := m.persist(ctx, state); err != nil {
		return nil, err
	}

	m.logger.Info("provider tokens stored", "expires_at", state.ExpiresAt, "refresh_token", state.RefreshToken != "")
	return state, nil
}

// State reads the stored provider credential. Missing fields are left empty.
func (m *TokenManager) State(ctx context.Context) (*models.ProviderTokenState, error) {
	var state models.ProviderTokenState

	access, _, err := m.settings.Get(ctx, models.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, _, err := m.settings.Get(ctx, models.KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	expires, ok, err := m.settings.Get(ctx, models.KeyTokenExpiresAt)
	if err != nil {
		return nil, err
	}

	state.AccessToken = access
	state.RefreshToken = refresh
	if ok {
		ms, err := strconv.ParseInt(expires, 10, 64)
		if err != nil {
			m.logger.Warn("ignoring malformed token expiry", "value", expires)
		} else {
			state.ExpiresAt = models.FromMillis(ms)
		}
	}

	return &state, nil
}

// NeedsRefresh reports whether state lacks a token or expiry, or is within [RefreshMargin] of expiring.
func (m *TokenManager) NeedsRefresh(state *models.ProviderTokenState) bool {
	if !state.HasAccessToken() {
		return true
	}
	return !m.now().Before(state.ExpiresAt.Add(-RefreshMargin))
}

// ValidAccessToken returns a usable access token, refreshing first when the stored one is stale.
func (m *TokenManager) ValidAccessToken(ctx context.Context) (string, error) {
	state, err := m.State(ctx)
	if err != nil {
		return "", err
	}
	if !m.NeedsRefresh(state) {
		return state.AccessToken, nil
	}
	return m.refresh(ctx, false)
}

// Refresh exchanges the stored refresh token for a new access token regardless of expiry.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	return m.refresh(ctx, true)
}

// refresh runs at most one provider refresh at a time. Waiters share its result.
//
// Unless forced, the stored state is re-read inside the flight so callers that
// raced a completed refresh reuse its token.
func (m *TokenManager) refresh(ctx context.Context, force bool) (string, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		fctx := context.WithoutCancel(ctx)

		state, err := m.State(fctx)
		if err != nil {
			return "", err
		}
		if !force && !m.NeedsRefresh(state) {
			return state.AccessToken, nil
		}
		if state.RefreshToken == "" {
			return "", shared.ErrNoRefreshToken
		}

		source := m.config.TokenSource(m.clientContext(fctx), &oauth2.Token{RefreshToken: state.RefreshToken})
		token, err := source.Token()
		if err != nil {
			return "", upstreamError("token refresh", err)
		}

		next := m.stateFrom(token, state.RefreshToken)
		if err := m.persist(fctx, next); err != nil {
			return "", err
		}

		m.logger.Info("provider token refreshed", "expires_at", next.ExpiresAt)
		return next.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// stateFrom converts a provider token, keeping previousRefresh when none was returned.
func (m *TokenManager) stateFrom(token *oauth2.Token, previousRefresh string) *models.ProviderTokenState {
	state := &models.ProviderTokenState{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if state.RefreshToken == "" {
		state.RefreshToken = previousRefresh
	}
	if d, ok := expiresIn(token, m.now()); ok {
		state.ExpiresAt = m.now().Add(d).Truncate(time.Millisecond)
	}
	return state
}

// persist writes the non-empty fields of state in one transaction.
func (m *TokenManager) persist(ctx context.Context, state *models.ProviderTokenState) error {
	values := map[string]string{models.KeyAccessToken: state.AccessToken}
	if !state.ExpiresAt.IsZero() {
		values[models.KeyTokenExpiresAt] = strconv.FormatInt(models.Millis(state.ExpiresAt), 10)
	}
	if state.RefreshToken != "" {
		values[models.KeyRefreshToken] = state.RefreshToken
	}

	if err := m.settings.SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to store provider tokens: %w", err)
	}
	return nil
}

func (m *TokenManager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

// expiresIn reads expires_in from the raw token response, falling back to the computed expiry relative to now.
func expiresIn(token *oauth2.Token, now time.Time) (time.Duration, bool) {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Duration(n) * time.Second, true
		}
	}
	if !token.Expiry.IsZero() {
		return token.Expiry.Sub(now), true
	}
	return 0, false
}

// upstreamError maps oauth2 failures to [*shared.UpstreamError], keeping the provider's status and body.
func upstreamError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &shared.UpstreamError{
			StatusCode: re.Response.StatusCode,
			Body:       re.Body,
			Err:        fmt.Errorf("%s: %s", op, describe(re)),
		}
	}
	return &shared.UpstreamError{Err: fmt.Errorf("%s: %w", op, err)}
}

func describe(re *oauth2.RetrieveError) string {
	if re.ErrorDescription != "" {
		return re.ErrorDescription
	}
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return http.StatusText(re.Response.StatusCode)
}
