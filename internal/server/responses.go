package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/shared"
)

const upstreamFailed = "Spotify API request failed"

type errorBody struct {
	Error any `json:"error"`
}

type successBody struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	var upstream *shared.UpstreamError
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrState):
		return http.StatusForbidden
	case errors.As(err, &upstream):
		return upstream.Status()
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the part of err that is safe to show a client.
//
// Sentinel prefixes are stripped; errors outside the taxonomy collapse to a generic message.
func publicMessage(err error) any {
	var upstream *shared.UpstreamError
	if errors.As(err, &upstream) {
		if json.Valid(upstream.Body) && len(upstream.Body) > 0 {
			return json.RawMessage(upstream.Body)
		}
		return upstreamFailed
	}

	for _, sentinel := range []error{
		shared.ErrValidation, shared.ErrMissingArgument, shared.ErrAuth, shared.ErrState, shared.ErrConfiguration,
	} {
		if errors.Is(err, sentinel) {
			msg := err.Error()
			if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
				return msg[i+len(sentinel.Error())+2:]
			}
			return msg
		}
	}

	if errors.Is(err, shared.ErrNoRefreshToken) {
		return "No refresh token available"
	}
	return "Internal server error"
}

// writeError reports err as {"error": message}. Server-side failures are logged with the full chain.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: publicMessage(err)})
}

// NotFound answers unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
}
