package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

func providerCompletions(toComplete string) []string {
	var out []string
	for _, name := range newRegistry(slog.New(slog.DiscardHandler)).Names() {
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(toComplete)) {
			out = append(out, name)
		}
	}
	return out
}

// ProviderFlagCompletion handles --provider flag completion
func ProviderFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return providerCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
}

func providerArgCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return providerCompletions(toComplete), cobra.ShellCompDirectiveNoFileComp
}

var completionCmd = &cobra.Command{
	Use:       "completion [bash|zsh|fish|powershell]",
	Short:     "Generate shell completion scripts",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return cobra.OnlyValidArgs(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
