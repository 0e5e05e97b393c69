// Package config resolves tool configuration from, in increasing
// precedence: built-in defaults, an optional YAML file, MOCHI_-prefixed
// environment variables, and command-line flags. A .env file in the
// working directory is honored for the API key, matching how the service's
// own tooling distributes credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/mochirev/internal/mochi"
)

// Config is the resolved tool configuration.
type Config struct {
	APIKey        string        `koanf:"api_key" validate:"required"`
	BaseURL       string        `koanf:"base_url" validate:"omitempty,url"`
	CachePath     string        `koanf:"cache_path"`
	NoCache       bool          `koanf:"no_cache"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=1,lte=10"`
	Port          int           `koanf:"port" validate:"gte=1,lte=65535"`
	IdleTimeout   time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	DrainTimeout  time.Duration `koanf:"drain_timeout" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:       mochi.DefaultBaseURL,
		CachePath:     "mochirev.db",
		RetryAttempts: 5,
		Port:          5111,
		IdleTimeout:   5 * time.Minute,
		DrainTimeout:  30 * time.Second,
	}
}

// Load resolves the configuration. configFile may be empty; a missing file
// at the default location is not an error. flags may be nil for callers
// without a flag set.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	// Best effort: a missing .env file is the common case.
	_ = godotenv.Load()

	k := koanf.New(".")

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("loading config file %s: %w", configFile, err)
			}
		}
	}

	if err := k.Load(env.Provider("MOCHI_", ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, "MOCHI_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("loading flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for commands that talk to the remote
// service. Commands that only read the local snapshot skip it.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, f := range invalid {
				if f.Field() == "APIKey" {
					return fmt.Errorf("MOCHI_API_KEY is not set; add it to the environment or a .env file")
				}
			}
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
