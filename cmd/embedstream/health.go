package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedstream/internal/elmo"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the model server has a servable model version",
	Long: `Check that the configured model server is reachable and reports an
AVAILABLE version of the model.

Examples:
  # Check the default server
  embedstream health

  # Check a different server
  embedstream health --model-url http://localhost:8501`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := elmo.NewClient(cfg.Model, logger.Underlying())
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}
	defer client.Close()

	if err := client.Load(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "model %q available at %s\n", cfg.Model.Model, cfg.Model.BaseURL)
	return nil
}
