// Proxy dispatcher relaying guest requests to the provider Web API
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/tunegate/internal/shared"
)

// forwarded request headers; everything else (cookies, the guest's Authorization) is dropped
var forwardHeaders = []string{"Content-Type", "Accept", "Accept-Language", "If-None-Match"}

// relayed response headers
var relayHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Retry-After", "Location"}

// APIService forwards requests to the provider API with the server-held access token.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	tokens     AccessTokenSource
}

// NewAPIService creates a proxy to baseURL using client for upstream calls.
func NewAPIService(baseURL string, client *http.Client, tokens AccessTokenSource) *APIService {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		tokens:     tokens,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ContentType returns the upstream content type.
func (r *APIResponse) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// Forward re-issues a request against baseURL + subpath and returns the provider's response verbatim.
//
// Provider error statuses are returned as a normal [APIResponse]; only a failure to reach the
// provider is an error.
func (a *APIService) Forward(ctx context.Context, method, subpath, rawQuery string, body io.Reader, header http.Header) (*APIResponse, error) {
	token, err := a.tokens.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	target := a.baseURL + "/" + strings.TrimLeft(subpath, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", shared.ErrValidation, err)
	}

	for _, h := range forwardHeaders {
		if v := header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &shared.UpstreamError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	headers := make(http.Header)
	for _, h := range relayHeaders {
		if v := resp.Header.Values(h); len(v) > 0 {
			headers[h] = v
		}
	}

	return &APIResponse{StatusCode: resp.StatusCode, Headers: headers, Body: data}, nil
}
