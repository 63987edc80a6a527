package cmd

import (
	"fmt"
	"os"

	"github.com/promptly-chat/promptly/internal/config"
	"github.com/promptly-chat/promptly/internal/exitcode"
	"github.com/promptly-chat/promptly/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit configuration",
	Long: `Show the effective configuration, run the setup wizard, or print where
the config file lives.

Examples:
  promptly config             # same as config show
  promptly config init
  promptly config path`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or update the config file interactively",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := ui.NewStyles(out, ui.ThemeFromConfig(cfg.Theme))
	source := path
	if _, err := os.Stat(path); err != nil {
		source = path + " (not created yet, showing defaults)"
	}
	fmt.Fprintln(out, styles.Muted.Render("# "+source))

	fmt.Fprintln(out, styles.Bold.Render("api_keys:"))
	for _, key := range config.CredentialKeys {
		fmt.Fprintf(out, "  %-10s %s\n", key+":", config.Mask(cfg.APIKeys[key]))
	}
	fmt.Fprintln(out, styles.Bold.Render("app_settings:"))
	fmt.Fprintf(out, "  use_streaming:       %t\n", cfg.AppSettings.UseStreaming)
	fmt.Fprintf(out, "  stream_min_chars:    %d\n", cfg.AppSettings.StreamMinChars)
	fmt.Fprintf(out, "  stream_max_interval: %s\n", cfg.AppSettings.StreamMaxInterval)
	fmt.Fprintln(out, styles.Bold.Render("history:"))
	fmt.Fprintf(out, "  backend: %s\n", cfg.History.Backend)
	if cfg.History.Path != "" {
		fmt.Fprintf(out, "  path:    %s\n", cfg.History.Path)
	}
	fmt.Fprintf(out, "%s %s\n", styles.Bold.Render("probe_cache_ttl:"), cfg.ProbeCacheTTL)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return exitcode.BadUsage("config init needs a terminal; edit the file from `promptly config path` instead")
	}
	existing, err := config.LoadUnresolved(configPath)
	if err != nil {
		return exitcode.BadConfig(fmt.Sprintf("failed to load config: %v", err))
	}
	cfg, err := ui.RunSetupWizard(existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg, configPath); err != nil {
		return err
	}
	path, _ := resolvedConfigPath()
	styles := ui.NewStyles(cmd.OutOrStdout(), ui.ThemeFromConfig(cfg.Theme))
	fmt.Fprintln(cmd.OutOrStdout(), styles.FormatResult(true, "Saved "+path))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
