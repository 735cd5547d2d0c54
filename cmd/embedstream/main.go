// Package main implements the embedstream CLI.
//
// embedstream streams contextual token embeddings from a hosted
// ELMo-style model for batches of tokenized sentences.
//
// Usage:
//
//	# Embed token sequences from a JSONL file (one JSON string array per line)
//	embedstream embed sentences.jsonl
//
//	# Embed from stdin with bag-of-words pooling
//	cat sentences.jsonl | embedstream embed --pooled -
//
//	# Check the model server
//	embedstream health
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedstream/internal/config"
	"github.com/fyrsmithlabs/embedstream/internal/logging"
)

var (
	// configPath is the config file path (empty means the default path).
	configPath string
	// modelURL overrides the configured model server URL.
	modelURL string
	// modelName overrides the configured model name.
	modelName string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedstream",
	Short: "Stream contextual token embeddings from a hosted model",
	Long: `embedstream streams per-token contextual embeddings (or bag-of-words
pooled embeddings) for batches of tokenized sentences, using a hosted
pretrained model behind a TensorFlow Serving REST API.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/embedstream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelURL, "model-url", "", "model server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model serving name (overrides config)")
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadConfig loads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if modelURL != "" {
		cfg.Model.BaseURL = modelURL
	}
	if modelName != "" {
		cfg.Model.Model = modelName
	}
	return cfg, nil
}

// newLogger builds the CLI logger from config.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.LoggingConfigFor())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}
