package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/exitcode"
	"github.com/promptly-chat/promptly/internal/tui"
	"github.com/promptly-chat/promptly/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatProvider string
	chatModel    string
	chatNew      bool
	chatPick     bool
	chatStream   bool
	chatPlain    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Open the chat screen over your saved conversations.

Examples:
  promptly chat
  promptly chat --new --provider anthropic --model claude-sonnet-4-5
  promptly chat --new --pick      # choose provider and model from a list
  echo "hello" | promptly chat --plain

Keyboard shortcuts:
  Enter        - Send message
  Ctrl+J       - Insert newline
  Esc          - Cancel the reply being generated
  Ctrl+N       - New conversation
  Ctrl+←/→     - Previous / next conversation
  Ctrl+C       - Quit

Slash commands:
  /new, /start <provider> <model>, /providers, /models [provider],
  /list, /open <query>, /next, /prev, /delete [id], /stream on|off,
  /retry, /help, /quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().StringVar(&chatProvider, "provider", "", "Start a new conversation with this provider")
		c.Flags().StringVar(&chatModel, "model", "", "Model for --provider")
		c.Flags().BoolVar(&chatNew, "new", false, "Create a new conversation before opening")
		c.Flags().BoolVar(&chatPick, "pick", false, "Choose provider and model interactively for a new conversation")
		c.Flags().BoolVar(&chatStream, "stream", false, "Stream replies (overrides app_settings.use_streaming)")
		c.Flags().BoolVar(&chatPlain, "plain", false, "Line mode: read messages from stdin, print replies to stdout")
		if err := c.RegisterFlagCompletionFunc("provider", ProviderFlagCompletion); err != nil {
			panic(fmt.Sprintf("failed to register provider completion: %v", err))
		}
	}
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !chatPlain && !ui.PlainOutput() &&
		term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(interactive)
	if err != nil {
		return err
	}
	defer closeLog()

	a := newApp(cfg, logger)
	defer a.Close()

	machine, err := a.machine(ctx)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("stream") {
		machine.SetStreaming(chatStream)
	}
	if err := prepareConversation(ctx, a, machine, interactive); err != nil {
		return err
	}

	if interactive {
		err = tui.Run(ctx, tui.Options{
			Machine: machine,
			Catalog: a.catalog,
			Styles:  ui.NewStyles(os.Stdout, ui.ThemeFromConfig(cfg.Theme)),
			Logger:  logger,
		})
	} else {
		err = tui.RunPlain(ctx, &tui.Host{Machine: machine, Catalog: a.catalog}, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to run chat: %w", err)
	}
	if ctx.Err() != nil {
		return exitcode.Cancel()
	}
	return nil
}

// prepareConversation applies --new, --provider, --model and --pick before
// the host takes over.
func prepareConversation(ctx context.Context, a *app, machine *chat.Machine, interactive bool) error {
	if chatModel != "" && chatProvider == "" {
		return exitcode.BadUsage("--model requires --provider")
	}
	if chatPick && !interactive {
		return exitcode.BadUsage("--pick needs a terminal")
	}
	if !chatNew && !chatPick && chatProvider == "" {
		return nil
	}

	provider, model := chatProvider, chatModel
	if provider != "" {
		resolved, err := a.resolveProvider(provider)
		if err != nil {
			return err
		}
		provider = resolved
	} else if chatPick {
		picked, err := ui.SelectProvider(a.catalog.Providers(ctx))
		if err != nil {
			return err
		}
		provider = picked
	}
	if provider != "" && model == "" {
		if !interactive {
			return exitcode.BadUsage("--provider requires --model outside a terminal")
		}
		picked, err := ui.SelectModel(provider, a.catalog.Models(ctx, provider))
		if err != nil {
			return err
		}
		model = picked
	}

	if _, err := machine.NewConversation(ctx); err != nil {
		return err
	}
	if provider == "" {
		return nil
	}
	if _, err := machine.Start(ctx, provider, model); err != nil {
		return err
	}
	return nil
}
