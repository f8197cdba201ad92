package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	HTTP        HTTPConfig        `toml:"http"`
}

// CredentialsConfig contains provider-specific OAuth credentials.
type CredentialsConfig struct {
	Spotify OAuthCredentials `toml:"spotify"`
	YouTube OAuthCredentials `toml:"youtube"`
}

// OAuthCredentials contains the client registration for one provider.
//
// A provider whose client_id is empty is not registered at startup.
// Once a client_id is set, the secret and redirect URI become required.
type OAuthCredentials struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret" validate:"required_with=ClientID"`
	RedirectURI  string `toml:"redirect_uri" validate:"required_with=ClientID"`
	APIKey       string `toml:"api_key,omitempty"`
}

// Configured reports whether enough credentials are present to build an adapter.
func (c OAuthCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// RedisConfig contains the cache connection used by the state store.
type RedisConfig struct {
	Addr     string `toml:"addr" validate:"required,hostname_port"`
	Password string `toml:"password"`
	DB       int    `toml:"db" validate:"gte=0"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HTTPConfig bounds outbound provider calls.
type HTTPConfig struct {
	TimeoutSeconds    int     `toml:"timeout_seconds" validate:"gt=0"`
	MaxRedirects      int     `toml:"max_redirects" validate:"gte=0,lte=10"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
}

// Timeout returns the configured timeout as a [time.Duration].
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides secrets from TUNESYNC_* environment variables when they are set.
func (c *Config) ApplyEnv() {
	for env, field := range map[string]*string{
		"TUNESYNC_SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"TUNESYNC_SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"TUNESYNC_YOUTUBE_CLIENT_ID":     &c.Credentials.YouTube.ClientID,
		"TUNESYNC_YOUTUBE_CLIENT_SECRET": &c.Credentials.YouTube.ClientSecret,
		"TUNESYNC_YOUTUBE_API_KEY":       &c.Credentials.YouTube.APIKey,
		"TUNESYNC_REDIS_ADDR":            &c.Redis.Addr,
		"TUNESYNC_REDIS_PASSWORD":        &c.Redis.Password,
		"TUNESYNC_DATABASE_PATH":         &c.Database.Path,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*field = v
		}
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	} else if err != nil {
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

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file at %s", ErrAlreadyExists, path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
