package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/promptly-chat/promptly/internal/exitcode"
	"github.com/spf13/cobra"
)

var (
	modelsJSON    bool
	modelsRefresh bool
)

var modelsCmd = &cobra.Command{
	Use:   "models <provider>",
	Short: "List available models from a provider",
	Long: `List the models a provider offers with the configured credentials.

Results are cached on disk for a few minutes; --refresh asks the provider
again.

Examples:
  promptly models openai
  promptly models ollama --refresh
  promptly models anthropic --json`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: providerArgCompletion,
	RunE:              runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.Flags().BoolVar(&modelsRefresh, "refresh", false, "Ignore cached model lists")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()
	a := newApp(cfg, logger)

	provider, err := a.resolveProvider(args[0])
	if err != nil {
		return err
	}
	if modelsRefresh {
		a.catalog.Refresh(provider)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	models := a.catalog.Models(ctx, provider)
	out := cmd.OutOrStdout()
	if modelsJSON {
		return writeJSON(out, models)
	}
	if len(models) == 0 {
		return exitcode.ExitError{
			Code:    exitcode.Error,
			Message: fmt.Sprintf("no models available from %s; check its credential with `promptly providers`", provider),
		}
	}
	fmt.Fprintf(out, "Available models from %s:\n\n", provider)
	for _, m := range models {
		fmt.Fprintf(out, "  %s\n", m)
	}
	return nil
}
