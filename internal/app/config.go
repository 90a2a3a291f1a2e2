package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the portal.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"portal_session"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	BackendURL        string        `envconfig:"BACKEND_URL" default:"http://127.0.0.1:8000"`
	BackendTimeout    time.Duration `envconfig:"BACKEND_TIMEOUT" default:"60s"`
	BackendAuthScheme string        `envconfig:"BACKEND_AUTH_SCHEME" default:"Bearer"`

	PermissionsCacheSize int           `envconfig:"PERMISSIONS_CACHE_SIZE" default:"4096"`
	PermissionsCacheTTL  time.Duration `envconfig:"PERMISSIONS_CACHE_TTL" default:"1h"`

	GuardFallback string `envconfig:"GUARD_FALLBACK" default:"/home"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.BackendURL == "" {
		return nil, errors.New("backend url must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the portal runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
