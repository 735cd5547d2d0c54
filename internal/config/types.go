// Package config provides configuration loading for embedstream.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
	"github.com/fyrsmithlabs/embedstream/internal/logging"
)

// Config is the top-level embedstream configuration.
type Config struct {
	// Model configures the hosted embedding model client.
	Model elmo.Config `koanf:"model"`

	// Producer configures embedding production.
	Producer ProducerConfig `koanf:"producer"`

	// Logging configures log output.
	Logging LoggingConfig `koanf:"logging"`
}

// ProducerConfig configures embedding production.
type ProducerConfig struct {
	// Pooled selects bag-of-words pooled output by default. The CLI flag
	// overrides it.
	Pooled bool `koanf:"pooled"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Validate validates the full configuration.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: invalid level %q: %w", c.Logging.Level, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging: format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}

// LoggingConfigFor converts the loaded logging section into a
// logging.Config. Validate must have succeeded first.
func (c *Config) LoggingConfigFor() *logging.Config {
	level, _ := logging.LevelFromString(c.Logging.Level)
	cfg := logging.NewDefaultConfig()
	cfg.Level = level
	cfg.Format = c.Logging.Format
	return cfg
}
