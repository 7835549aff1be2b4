package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Provider    ProviderConfig    `toml:"provider"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Limits      LimitsConfig      `toml:"limits"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// ClientSecret is optional: the PKCE flow only needs the client id.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string   `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string   `toml:"redirect_uri" env:"SPOTIFY_REDIRECT_URI"`
	Scopes       []string `toml:"scopes" env:"SPOTIFY_SCOPES" envSeparator:" "`
}

// ProviderConfig contains the provider endpoints. Overridable so tests and staging can point elsewhere.
type ProviderConfig struct {
	AuthURL    string        `toml:"auth_url"`
	TokenURL   string        `toml:"token_url"`
	APIBaseURL string        `toml:"api_base_url"`
	Timeout    time.Duration `toml:"timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"DB_PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string        `toml:"host" env:"HOST"`
	Port         int           `toml:"port" env:"PORT"`
	FrontendURL  string        `toml:"frontend_url" env:"FRONTEND_URL"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// SessionConfig contains guest session settings.
type SessionConfig struct {
	Secret string        `toml:"secret" env:"JWT_SECRET"`
	TTL    time.Duration `toml:"ttl" env:"SESSION_TTL"`
}

// LimitsConfig contains per-client rate limits. A window of N requests per duration.
type LimitsConfig struct {
	APIRequests   int           `toml:"api_requests"`
	APIWindow     time.Duration `toml:"api_window"`
	LoginRequests int           `toml:"login_requests"`
	LoginWindow   time.Duration `toml:"login_window"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate reports missing provider credentials.
//
// The server can still start without them; only the admin setup endpoints depend on them.
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.Spotify.ClientID == "" {
		errs = append(errs, errors.New("spotify client_id is not set"))
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		errs = append(errs, errors.New("spotify redirect_uri is not set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ResolveConfig loads the config file at path when it exists (defaults otherwise),
// then applies a .env file from the working directory and the process environment on top.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	// a missing .env is the normal case
	_ = godotenv.Load()

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables onto config. Unset variables leave values untouched.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: parse env: %w", ErrInvalidConfig, err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
