package elmo

import (
	"fmt"
	"os"
	"time"
)

// Default serving parameters for the hosted ELMo model.
const (
	// DefaultModel is the serving name of the pretrained model.
	DefaultModel = "elmo"

	// DefaultBaseURL is the default model server address.
	DefaultBaseURL = "http://localhost:8501"

	// DefaultTimeout bounds a single predict round trip.
	DefaultTimeout = 60 * time.Second

	// DefaultRequestsPerSecond limits predict calls to the model server.
	DefaultRequestsPerSecond = 10

	// DefaultBurst is the rate limiter burst size.
	DefaultBurst = 5
)

// Expected output widths of the "tokens" signature.
const (
	// WordEmbDim is the channel width of the word_emb output.
	WordEmbDim = 512

	// LayerDim is the channel width of each biLM layer output, and of the
	// tiled word embedding.
	LayerDim = 1024
)

// Config holds configuration for the model client.
type Config struct {
	// BaseURL is the model server base URL.
	BaseURL string `koanf:"base_url"`

	// Model is the serving name of the model.
	Model string `koanf:"model"`

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond limits predict calls. Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the rate limiter burst size.
	Burst int `koanf:"burst"`
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL:           os.Getenv("EMBEDSTREAM_MODEL_URL"),
		Model:             os.Getenv("EMBEDSTREAM_MODEL_NAME"),
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return cfg
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model name required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must be >= 0", ErrInvalidConfig)
	}
	return nil
}
