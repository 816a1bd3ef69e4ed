// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Build metadata injected at link time via:
//
//	-ldflags "-X swellcast/internal/config.version=... -X swellcast/internal/config.commit=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// NewBuildInfo returns the build metadata captured at link time.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// LoadConfig loads and validates the service configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Populates Config.Build from linker-injected variables.
//  5. Validates the Config struct, including cache-schedule sanity checks
//     that validator tags cannot express.
func LoadConfig() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). godotenv.Load does NOT
	// override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Process envconfig tags to populate the Config struct.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Populate build metadata from linker-injected variables.
	cfg.Build = NewBuildInfo()

	// Step 5: Validate the populated struct.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "cache configuration invalid",
			Err:     err,
		}
	}

	return &cfg, nil
}

// validateCache enforces the cross-field cache invariants:
// the stale window must exceed the fresh window, the refresh schedule must
// name at least one valid hour, and the timezone must resolve.
func validateCache(c *CacheConfig) error {
	if c.FreshWindow <= 0 {
		return fmt.Errorf("CACHE_FRESH_WINDOW must be positive, got %s", c.FreshWindow)
	}
	if c.StaleWindow <= c.FreshWindow {
		return fmt.Errorf("CACHE_STALE_WINDOW (%s) must exceed CACHE_FRESH_WINDOW (%s)",
			c.StaleWindow, c.FreshWindow)
	}
	if len(c.RefreshHours) == 0 {
		return fmt.Errorf("CACHE_REFRESH_HOURS must name at least one hour")
	}
	for _, h := range c.RefreshHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("refresh hour %d out of range [0,23]", h)
		}
	}
	// The schedule math assumes ascending hours.
	sort.Ints(c.RefreshHours)

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid CACHE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
