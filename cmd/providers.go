package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/promptly-chat/promptly/internal/config"
	"github.com/promptly-chat/promptly/internal/ui"
	"github.com/spf13/cobra"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Probe which providers are usable right now",
	Long: `Probe every known provider concurrently and report which ones answer
with the configured credentials.

Examples:
  promptly providers
  promptly providers --json`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(providersCmd)
}

type providerStatus struct {
	Name       string `json:"name"`
	Credential string `json:"credential"`
	Available  bool   `json:"available"`
}

func runProviders(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	available := make(map[string]bool)
	for _, name := range a.catalog.Providers(ctx) {
		available[name] = true
	}

	var statuses []providerStatus
	for _, e := range a.registry.Entries() {
		cred := a.creds.Get(e.CredentialKey)
		shown := config.Mask(cred)
		if !e.RequiresCredential && cred == "" {
			shown = "(default)"
		}
		statuses = append(statuses, providerStatus{Name: e.Name, Credential: shown, Available: available[e.Name]})
	}

	out := cmd.OutOrStdout()
	if providersJSON {
		return writeJSON(out, statuses)
	}

	styles := ui.NewStyles(out, ui.ThemeFromConfig(cfg.Theme))
	for _, s := range statuses {
		fmt.Fprintf(out, "%s  %s\n", styles.FormatResult(s.Available, fmt.Sprintf("%-10s", s.Name)), styles.Muted.Render(s.Credential))
	}
	if len(available) == 0 {
		fmt.Fprintln(out, "\nNo providers are available. Run `promptly config init` to add API keys.")
	}
	return nil
}
