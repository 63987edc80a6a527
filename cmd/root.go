package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/promptly-chat/promptly/internal/exitcode"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debugLog   bool
	logFile    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/promptly/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
}

var rootCmd = &cobra.Command{
	Use:   "promptly",
	Short: "Chat with OpenAI, Anthropic, Gemini, Mistral, Deepseek and Ollama models",
	Long: `promptly keeps a set of conversations, each bound to one provider and
model, and lets you switch between them while replies stream in.

Examples:
  promptly                                  # open the chat screen
  promptly chat --provider openai --model gpt-4o
  promptly providers                        # which backends answer right now
  promptly models anthropic                 # what a backend offers
  promptly history list
  promptly history export chat_3 --format html -o chat.html
  promptly config init                      # interactive setup`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	SilenceErrors:     true,
	Args:              cobra.NoArgs,
	RunE:              runChat,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitcode.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code != exitcode.Cancelled {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitcode.Error)
	}
}
