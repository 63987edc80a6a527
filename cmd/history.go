package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
	"github.com/promptly-chat/promptly/internal/session"
	"github.com/promptly-chat/promptly/internal/ui"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved conversations",
	Long: `List, show, delete, and export saved conversations.

Examples:
  promptly history                      # list conversations
  promptly history show chat_2
  promptly history delete chat_2
  promptly history export chat_2 --format yaml
  promptly history path`,
	RunE: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as markdown, HTML or YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

var historyPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where history is stored",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPath,
}

// Flags
var (
	historyJSON          bool
	historyFormat        string
	historyOutput        string
	historyIncludeSystem bool
)

func init() {
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyExportCmd.Flags().StringVarP(&historyFormat, "format", "f", "md", "Export format: md, html or yaml")
	historyExportCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Write to this file instead of stdout")
	historyExportCmd.Flags().BoolVar(&historyIncludeSystem, "include-system", false, "Include system messages")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyPathCmd)

	rootCmd.AddCommand(historyCmd)
}

// openHistory loads the saved set through a machine so that edits follow
// the same rules as the chat screen.
func openHistory(ctx context.Context) (*app, *chat.Machine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := newLogger(false)
	if err != nil {
		return nil, nil, err
	}
	a := newApp(cfg, logger)
	a.closeLog = closeLog
	machine, err := a.machine(ctx)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, machine, nil
}

func lookupConversation(machine *chat.Machine, id string) (*conversation.Conversation, error) {
	c, ok := machine.Conversation(id)
	if !ok {
		return nil, fmt.Errorf("conversation '%s' not found", id)
	}
	return c, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, machine, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	list := machine.Conversations()
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	styles := ui.NewStyles(out, ui.ThemeFromConfig(a.cfg.Theme))
	for _, s := range list {
		marker := ui.InactiveIcon
		if s.Active {
			marker = ui.ActiveIcon
		}
		created := ""
		if c, ok := machine.Conversation(s.ID); ok && !c.CreatedAt.IsZero() {
			created = formatRelativeTime(c.CreatedAt)
		}
		fmt.Fprintf(out, "%s %-8s %-40s %s\n", marker, s.ID, ui.Truncate(s.Title, 40),
			styles.Muted.Render(fmt.Sprintf("%3d msgs  %s", s.Messages, created)))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, machine, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := lookupConversation(machine, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyJSON {
		return writeJSON(out, c)
	}

	styles := ui.NewStyles(out, ui.ThemeFromConfig(a.cfg.Theme))
	fmt.Fprintln(out, styles.Title.Render(c.Title))
	fmt.Fprintf(out, "ID: %s\n", c.ID)
	if c.Started {
		fmt.Fprintf(out, "Provider: %s\nModel: %s\n", c.Provider, c.Model)
	}
	if !c.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Messages: %d\n\n", len(c.Messages))

	for _, msg := range c.Messages {
		switch {
		case msg.Role == conversation.RoleUser:
			fmt.Fprintln(out, styles.UserLabel.Render("You"))
		case msg.Role == conversation.RoleSystem:
			fmt.Fprintln(out, styles.Muted.Render("System"))
		default:
			fmt.Fprintln(out, styles.AssistantLabel.Render(c.Provider))
		}
		content := ui.RenderContent(msg.Content, 80)
		if llm.IsErrorText(msg.Content) {
			content = styles.Error.Render(content)
		}
		fmt.Fprintf(out, "%s\n\n", content)
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, machine, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := machine.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation: %s\n", args[0])
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format, err := session.ParseFormat(historyFormat)
	if err != nil {
		return err
	}
	a, machine, err := openHistory(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := lookupConversation(machine, args[0])
	if err != nil {
		return err
	}
	data, err := session.Export(c, format, session.ExportOptions{IncludeSystem: historyIncludeSystem})
	if err != nil {
		return err
	}

	if historyOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(historyOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d messages to %s\n", len(c.Messages), historyOutput)
	return nil
}

func runHistoryPath(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.History.Path
	if path == "" {
		if path, err = session.DefaultPath(cfg.History.Backend); err != nil {
			return err
		}
	}
	if path == "" {
		path = "(in memory)"
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// formatRelativeTime returns a human-readable relative time string
func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
