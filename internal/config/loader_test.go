package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
)

// writeConfigFile writes a config file with secure permissions and returns
// its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadWithFileDefaults(t *testing.T) {
	// Nonexistent file: defaults plus environment apply.
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, elmo.DefaultBaseURL, cfg.Model.BaseURL)
	assert.Equal(t, elmo.DefaultModel, cfg.Model.Model)
	assert.Equal(t, elmo.DefaultTimeout, cfg.Model.Timeout)
	assert.Equal(t, float64(elmo.DefaultRequestsPerSecond), cfg.Model.RequestsPerSecond)
	assert.False(t, cfg.Producer.Pooled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadWithFileYAML(t *testing.T) {
	path := writeConfigFile(t, `
model:
  base_url: http://models:8501
  model: elmo-v2
  timeout: 30s
producer:
  pooled: true
logging:
  level: debug
  format: console
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://models:8501", cfg.Model.BaseURL)
	assert.Equal(t, "elmo-v2", cfg.Model.Model)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.True(t, cfg.Producer.Pooled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadWithFileEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
model:
  base_url: http://from-yaml:8501
logging:
  level: warn
`)

	t.Setenv("EMBEDSTREAM_MODEL_BASE_URL", "http://from-env:9000")
	t.Setenv("EMBEDSTREAM_LOGGING_LEVEL", "trace")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	// Environment wins over YAML.
	assert.Equal(t, "http://from-env:9000", cfg.Model.BaseURL)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoadWithFileInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  model: elmo\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFileInvalidValues(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		errMessage string
	}{
		{
			name:       "bad log level",
			yaml:       "logging:\n  level: loud\n",
			errMessage: "invalid level",
		},
		{
			name:       "bad log format",
			yaml:       "logging:\n  format: xml\n",
			errMessage: "format must be",
		},
		{
			name:       "negative timeout",
			yaml:       "model:\n  timeout: -5s\n",
			errMessage: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMessage)
		})
	}
}

func TestLoadWithFileMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "model: [unclosed\n")
	_, err := LoadWithFile(path)
	require.Error(t, err)
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EMBEDSTREAM_MODEL_BASE_URL", "model.base_url"},
		{"EMBEDSTREAM_MODEL_REQUESTS_PER_SECOND", "model.requests_per_second"},
		{"EMBEDSTREAM_LOGGING_LEVEL", "logging.level"},
		{"EMBEDSTREAM_PRODUCER_POOLED", "producer.pooled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, transformEnvKey(tt.in), tt.in)
	}
}

func TestLoggingConfigFor(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "console"},
	}
	lc := cfg.LoggingConfigFor()
	assert.Equal(t, "console", lc.Format)
	assert.True(t, lc.Level.Enabled(lc.Level), "level parses")
}
