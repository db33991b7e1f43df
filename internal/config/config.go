// Package config loads server configuration. Values come from an optional
// config.yaml with environment variables taking precedence, so a bare
// DATABASE_URL is enough to run.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration.
type Config struct {
	// DatabaseURL selects the relational backend. Empty selects the
	// in-memory store (tests and local runs without postgres).
	DatabaseURL string `mapstructure:"database_url"`

	// ListenAddr is the HTTP bind address.
	ListenAddr string `mapstructure:"listen_addr"`

	// AdminAPIKey seeds the bootstrap admin principal. The default exists
	// for first-run convenience only; override it in any real deployment.
	AdminAPIKey string `mapstructure:"admin_api_key"`

	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// DefaultAdminAPIKey matches the key the original deployment shipped with.
const DefaultAdminAPIKey = "175b6f1fc25c47e69ff73442f96298ae"

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("admin_api_key", DefaultAdminAPIKey)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DATABASE_URL, LISTEN_ADDR, ADMIN_API_KEY, LOGGING_LEVEL, LOGGING_FORMAT
	for _, key := range []string{"database_url", "listen_addr", "admin_api_key", "logging.level", "logging.format"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("admin_api_key must not be empty")
	}
	return nil
}
