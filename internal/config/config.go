// Package config defines the global configuration structure for the swellcast
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"swellcast/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the swellcast service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"swellcast"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Conditions ConditionsConfig
	Narration  NarrationConfig
	Auth       AuthConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// RequestTimeout is the soft deadline applied to every request context.
	// Regeneration (conditions fetch + narration) must fit inside it.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"45s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// CacheConfig holds the report cache freshness and refresh-schedule tuning.
// The windows govern serving policy; the refresh hours govern when a newly
// generated report expires from the "current" slot.
type CacheConfig struct {
	// Location is the cache key for the current deployment. The store
	// supports multiple locations but a single instance serves one.
	Location string `envconfig:"REPORT_LOCATION" default:"santa-cruz"`

	FreshWindow time.Duration `envconfig:"CACHE_FRESH_WINDOW" default:"2h"`
	StaleWindow time.Duration `envconfig:"CACHE_STALE_WINDOW" default:"6h"`

	// RefreshHours are the local hours (in Timezone) at which the external
	// scheduler re-warms the cache. A report's cached_until is aligned to
	// the next of these hours.
	RefreshHours []int  `envconfig:"CACHE_REFRESH_HOURS" default:"5,9,13,16"`
	Timezone     string `envconfig:"CACHE_TIMEZONE" default:"America/New_York"`

	// RetentionDays controls how long report history is kept before the
	// post-save pruning pass removes it.
	RetentionDays int `envconfig:"CACHE_RETENTION_DAYS" default:"14" validate:"min=1"`
}

// ConditionsConfig holds the upstream ocean-condition data source settings.
// Marine data (waves, swell, tide, water temperature) and atmospheric data
// (wind, air temperature, weather code) come from two hosts of the same
// provider family.
type ConditionsConfig struct {
	MarineBaseURL  string        `envconfig:"CONDITIONS_BASE_URL" default:"https://marine-api.open-meteo.com" validate:"url"`
	WeatherBaseURL string        `envconfig:"WEATHER_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	Timeout        time.Duration `envconfig:"CONDITIONS_TIMEOUT" default:"5s"`

	// Coordinates of the surf break the deployment reports on.
	Latitude  float64 `envconfig:"MARINE_LAT" default:"36.9514"`
	Longitude float64 `envconfig:"MARINE_LON" default:"-122.0262"`
}

// NarrationConfig holds the chat-completions narration endpoint settings.
type NarrationConfig struct {
	BaseURL string        `envconfig:"NARRATION_BASE_URL" default:"https://api.openai.com" validate:"url"`
	APIKey  SecretString  `envconfig:"NARRATION_API_KEY" validate:"required"`
	Model   string        `envconfig:"NARRATION_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"NARRATION_TIMEOUT" default:"30s"`
}

// AuthConfig holds the shared secret protecting the administrative endpoints
// (warm refresh, cache clear, report save).
type AuthConfig struct {
	RefreshToken SecretString `envconfig:"ADMIN_REFRESH_TOKEN" validate:"required,min=16"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
