// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds every recognised environment option.
type Config struct {
	Host            string `env:"HOST"             envDefault:"0.0.0.0"`
	Port            int    `env:"PORT"             envDefault:"8080"`
	FrontendURL     string `env:"FRONTEND_URL"     envDefault:"http://localhost:3000"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
	CredentialsPath string `env:"CREDENTIALS_PATH" envDefault:"/credentials"`
	Version         string `env:"VERSION"          envDefault:"dev"`

	Twitter  ProviderEnv `envPrefix:"TWITTER_"`
	LinkedIn ProviderEnv `envPrefix:"LINKEDIN_"`

	FlowTTL                 time.Duration `env:"FLOW_TTL"                  envDefault:"10m"`
	CredentialRetention     time.Duration `env:"CREDENTIAL_RETENTION"      envDefault:"3h"`
	SweepFlowInterval       time.Duration `env:"SWEEP_FLOW_INTERVAL"       envDefault:"2m"`
	SweepCredentialInterval time.Duration `env:"SWEEP_CREDENTIAL_INTERVAL" envDefault:"1h"`
	UpstreamTimeout         time.Duration `env:"UPSTREAM_TIMEOUT"          envDefault:"10s"`

	StoreBackend          string `env:"STORE_BACKEND"           envDefault:"memory"`
	RedisURL              string `env:"REDIS_URL"`
	RedisKeyPrefix        string `env:"REDIS_KEY_PREFIX"        envDefault:"sercha:publish:"`
	DatabaseURL           string `env:"DATABASE_URL"`
	TokenEncryptionSecret string `env:"TOKEN_ENCRYPTION_SECRET"`

	APIJWTSecret string `env:"API_JWT_SECRET"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"    envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// ProviderEnv holds one provider's OAuth client settings.
// Endpoint overrides exist for tests and sandboxes.
type ProviderEnv struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	UserInfoURL  string   `env:"USERINFO_URL"`
	APIBaseURL   string   `env:"API_BASE_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...) // silently ignore if .env doesn't exist

	return Parse()
}

// Parse reads configuration from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail later at runtime and
// normalises LOG_FORMAT to lower case.
// Missing provider credentials are not an error; that provider's flows fail
// with a configuration error instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
		if c.TokenEncryptionSecret == "" {
			errs = append(errs, errors.New("TOKEN_ENCRYPTION_SECRET is required for the redis store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
		if c.TokenEncryptionSecret == "" {
			errs = append(errs, errors.New("TOKEN_ENCRYPTION_SECRET is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, redis, postgres", c.StoreBackend))
	}

	if c.FlowTTL <= 0 {
		errs = append(errs, errors.New("FLOW_TTL must be positive"))
	}
	if c.CredentialRetention <= 0 {
		errs = append(errs, errors.New("CREDENTIAL_RETENTION must be positive"))
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	return errors.Join(errs...)
}

// BaseURL is the externally reachable origin of this service.
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimSuffix(c.PublicBaseURL, "/")
	}
	return "http://localhost:" + strconv.Itoa(c.Port)
}

// RedirectURI returns the OAuth callback URL for a provider.
func (c *Config) RedirectURI(provider domain.ProviderType) string {
	return c.BaseURL() + "/auth/" + string(provider) + "/callback"
}

// ProviderConfig builds the static OAuth client configuration for a provider.
func (c *Config) ProviderConfig(provider domain.ProviderType) domain.ProviderConfig {
	var p ProviderEnv
	switch provider {
	case domain.ProviderTypeTwitter:
		p = c.Twitter
	case domain.ProviderTypeLinkedIn:
		p = c.LinkedIn
	}
	return domain.ProviderConfig{
		Provider:     provider,
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
		UserInfoURL:  p.UserInfoURL,
		Scopes:       p.Scopes,
		RedirectURI:  c.RedirectURI(provider),
	}
}

// APIBaseURL returns the publishing API override for a provider, if any.
func (c *Config) APIBaseURL(provider domain.ProviderType) string {
	switch provider {
	case domain.ProviderTypeTwitter:
		return c.Twitter.APIBaseURL
	case domain.ProviderTypeLinkedIn:
		return c.LinkedIn.APIBaseURL
	default:
		return ""
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
