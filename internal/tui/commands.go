package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/llm"
	"github.com/promptly-chat/promptly/internal/ui"
)

// Command represents a slash command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
}

// AllCommands returns all available slash commands
func AllCommands() []Command {
	return []Command{
		{
			Name:        "help",
			Aliases:     []string{"h", "?"},
			Description: "Show help and available commands",
			Usage:       "/help",
		},
		{
			Name:        "new",
			Aliases:     []string{"n"},
			Description: "Create a new conversation",
			Usage:       "/new",
		},
		{
			Name:        "start",
			Description: "Start the active conversation with a provider and model",
			Usage:       "/start <provider> <model>",
		},
		{
			Name:        "providers",
			Aliases:     []string{"p"},
			Description: "List providers that are currently available",
			Usage:       "/providers [refresh]",
		},
		{
			Name:        "models",
			Aliases:     []string{"m"},
			Description: "List models offered by a provider",
			Usage:       "/models [provider] [refresh]",
		},
		{
			Name:        "list",
			Aliases:     []string{"ls"},
			Description: "List conversations",
			Usage:       "/list",
		},
		{
			Name:        "open",
			Aliases:     []string{"o"},
			Description: "Switch to the conversation best matching a query",
			Usage:       "/open <query>",
		},
		{
			Name:        "next",
			Description: "Switch to the next conversation",
			Usage:       "/next",
		},
		{
			Name:        "prev",
			Description: "Switch to the previous conversation",
			Usage:       "/prev",
		},
		{
			Name:        "delete",
			Description: "Delete the active conversation, or the one named",
			Usage:       "/delete [id]",
		},
		{
			Name:        "stream",
			Description: "Turn streamed replies on or off",
			Usage:       "/stream on|off",
		},
		{
			Name:        "retry",
			Description: "Resume a cancelled reply",
			Usage:       "/retry",
		},
		{
			Name:        "quit",
			Aliases:     []string{"q", "exit"},
			Description: "Exit chat",
			Usage:       "/quit",
		},
	}
}

// CommandSource implements fuzzy.Source for command searching
type CommandSource []Command

func (c CommandSource) String(i int) string {
	return c[i].Name
}

func (c CommandSource) Len() int {
	return len(c)
}

// FilterCommands returns commands matching the query using fuzzy search
func FilterCommands(query string) []Command {
	commands := AllCommands()
	query = strings.ToLower(strings.TrimPrefix(query, "/"))
	if query == "" {
		return commands
	}

	// First check for exact name or alias matches
	for _, cmd := range commands {
		if cmd.Name == query {
			return []Command{cmd}
		}
		for _, alias := range cmd.Aliases {
			if alias == query {
				return []Command{cmd}
			}
		}
	}

	var result []Command
	for _, match := range fuzzy.FindFrom(query, CommandSource(commands)) {
		result = append(result, commands[match.Index])
	}
	return result
}

// lookupCommand resolves a typed name to a command: exact name or alias,
// then a unique prefix. On failure it returns a message for the user.
func lookupCommand(name string) (Command, string) {
	all := AllCommands()
	for _, c := range all {
		if c.Name == name {
			return c, ""
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c, ""
			}
		}
	}

	var prefixMatches []Command
	for _, c := range all {
		if strings.HasPrefix(c.Name, name) {
			prefixMatches = append(prefixMatches, c)
		}
	}
	switch len(prefixMatches) {
	case 0:
		return Command{}, fmt.Sprintf("Unknown command: /%s\nType /help for available commands.", name)
	case 1:
		return prefixMatches[0], ""
	}
	names := make([]string, len(prefixMatches))
	for i, c := range prefixMatches {
		names[i] = "/" + c.Name
	}
	return Command{}, fmt.Sprintf("Ambiguous command: /%s\nDid you mean: %s?", name, strings.Join(names, ", "))
}

// Result is what a command wants the host to do next.
type Result struct {
	// Output is shown to the user; empty means nothing to say.
	Output string
	// Quit ends the session.
	Quit bool
	// Retry asks the host to resume an owed reply.
	Retry bool
}

// Host executes slash commands against the state machine. It is shared by
// the full-screen UI and line mode.
type Host struct {
	Machine *chat.Machine
	Catalog *llm.Catalog
}

// IsCommand reports whether input should be treated as a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Execute runs one slash command line.
func (h *Host) Execute(ctx context.Context, input string) (Result, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Result{}, nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	cmd, problem := lookupCommand(name)
	if problem != "" {
		return Result{Output: problem}, nil
	}

	switch cmd.Name {
	case "help":
		return Result{Output: helpText()}, nil
	case "new":
		return h.cmdNew(ctx)
	case "start":
		return h.cmdStart(ctx, args)
	case "providers":
		return h.cmdProviders(ctx, args)
	case "models":
		return h.cmdModels(ctx, args)
	case "list":
		return Result{Output: h.listText()}, nil
	case "open":
		return h.cmdOpen(args)
	case "next":
		return h.cmdMove(1)
	case "prev":
		return h.cmdMove(-1)
	case "delete":
		return h.cmdDelete(ctx, args)
	case "stream":
		return h.cmdStream(args)
	case "retry":
		return h.cmdRetry()
	case "quit":
		return Result{Quit: true}, nil
	}
	return Result{Output: fmt.Sprintf("Command /%s is not yet implemented.", cmd.Name)}, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range AllCommands() {
		fmt.Fprintf(&b, "  %-28s %s", cmd.Usage, cmd.Description)
		if len(cmd.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(cmd.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAnything else you type is sent to the active conversation.")
	return b.String()
}

func (h *Host) cmdNew(ctx context.Context) (Result, error) {
	id, err := h.Machine.NewConversation(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Created %s. Use /start <provider> <model> to begin.", id)}, nil
}

func (h *Host) cmdStart(ctx context.Context, args []string) (Result, error) {
	if len(args) < 2 {
		return Result{Output: "Usage: /start <provider> <model>"}, nil
	}
	provider := h.resolveProvider(args[0])
	model := strings.Join(args[1:], " ")

	started, err := h.Machine.Start(ctx, provider, model)
	switch {
	case errors.Is(err, chat.ErrUnknownProvider):
		return Result{Output: fmt.Sprintf("Unknown provider %q. Use /providers to see what is available.", args[0])}, nil
	case errors.Is(err, chat.ErrNoActiveConversation):
		return Result{Output: "No active conversation. Use /new first."}, nil
	case err != nil:
		return Result{}, err
	case !started:
		return Result{Output: "This conversation has already been started. Use /new for another."}, nil
	}
	return Result{Output: fmt.Sprintf("Started chat with %s - %s.", provider, model)}, nil
}

// resolveProvider maps a case-insensitive name to its registered spelling.
func (h *Host) resolveProvider(name string) string {
	reg := h.Machine.Registry()
	if reg == nil {
		return name
	}
	for _, s := range reg.Names() {
		if strings.EqualFold(s, name) {
			return s
		}
	}
	return name
}

func (h *Host) cmdProviders(ctx context.Context, args []string) (Result, error) {
	if h.Catalog == nil {
		return Result{Output: "Provider discovery is not configured."}, nil
	}
	if len(args) > 0 && args[0] == "refresh" {
		h.Catalog.Refresh("")
	}
	names := h.Catalog.Providers(ctx)
	if len(names) == 0 {
		return Result{Output: "No providers are available. Check your API keys with `promptly config show`."}, nil
	}
	return Result{Output: "Available providers: " + strings.Join(names, ", ")}, nil
}

func (h *Host) cmdModels(ctx context.Context, args []string) (Result, error) {
	if h.Catalog == nil {
		return Result{Output: "Provider discovery is not configured."}, nil
	}
	refresh := false
	var provider string
	for _, a := range args {
		if a == "refresh" {
			refresh = true
		} else if provider == "" {
			provider = h.resolveProvider(a)
		}
	}
	if provider == "" {
		if c, ok := h.Machine.Active(); ok && c.Started {
			provider = c.Provider
		}
	}
	if provider == "" {
		return Result{Output: "Usage: /models <provider>"}, nil
	}
	if refresh {
		h.Catalog.Refresh(provider)
	}
	models := h.Catalog.Models(ctx, provider)
	if len(models) == 0 {
		return Result{Output: fmt.Sprintf("No models available for %s.", provider)}, nil
	}
	return Result{Output: fmt.Sprintf("%s models:\n  %s", provider, strings.Join(models, "\n  "))}, nil
}

func (h *Host) listText() string {
	list := h.Machine.Conversations()
	if len(list) == 0 {
		return "No conversations. Use /new to create one."
	}
	var b strings.Builder
	for i, s := range list {
		marker := ui.InactiveIcon
		if s.Active {
			marker = ui.ActiveIcon
		}
		status := ""
		if s.Processing {
			status = " (replying)"
		}
		fmt.Fprintf(&b, "%s %-8s %s  [%d messages]%s", marker, s.ID, ui.Truncate(s.Title, 40), s.Messages, status)
		if i < len(list)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// summarySource implements fuzzy.Source over conversation ids and titles.
type summarySource []chat.Summary

func (s summarySource) String(i int) string {
	return s[i].ID + " " + s[i].Title
}

func (s summarySource) Len() int {
	return len(s)
}

// MatchConversation returns the id best matching query, or "".
func MatchConversation(list []chat.Summary, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	for _, s := range list {
		if s.ID == query {
			return s.ID
		}
	}
	matches := fuzzy.FindFrom(query, summarySource(list))
	if len(matches) == 0 {
		return ""
	}
	return list[matches[0].Index].ID
}

func (h *Host) cmdOpen(args []string) (Result, error) {
	if len(args) == 0 {
		return Result{Output: "Usage: /open <query>"}, nil
	}
	query := strings.Join(args, " ")
	id := MatchConversation(h.Machine.Conversations(), query)
	if id == "" {
		return Result{Output: fmt.Sprintf("No conversation matches %q.", query)}, nil
	}
	if err := h.Machine.Select(id); err != nil {
		return Result{}, err
	}
	return Result{Output: "Switched to " + h.describe(id)}, nil
}

func (h *Host) cmdMove(offset int) (Result, error) {
	id := h.Machine.Neighbor(offset)
	if id == "" {
		return Result{Output: "No conversations. Use /new to create one."}, nil
	}
	if err := h.Machine.Select(id); err != nil {
		return Result{}, err
	}
	return Result{Output: "Switched to " + h.describe(id)}, nil
}

func (h *Host) describe(id string) string {
	c, ok := h.Machine.Conversation(id)
	if !ok {
		return id
	}
	return fmt.Sprintf("%s (%s)", c.ID, c.Title)
}

func (h *Host) cmdDelete(ctx context.Context, args []string) (Result, error) {
	id := h.Machine.Snapshot().ActiveID
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		return Result{Output: "No active conversation to delete."}, nil
	}
	err := h.Machine.Delete(ctx, id)
	if errors.Is(err, chat.ErrUnknownConversation) {
		return Result{Output: fmt.Sprintf("No conversation %q.", id)}, nil
	}
	if err != nil {
		return Result{}, err
	}
	out := "Deleted " + id + "."
	if active := h.Machine.Snapshot().ActiveID; active != "" {
		out += " Now in " + h.describe(active) + "."
	}
	return Result{Output: out}, nil
}

func (h *Host) cmdStream(args []string) (Result, error) {
	if len(args) == 0 {
		state := "off"
		if h.Machine.Streaming() {
			state = "on"
		}
		return Result{Output: "Streaming is " + state + "."}, nil
	}
	switch strings.ToLower(args[0]) {
	case "on":
		h.Machine.SetStreaming(true)
		return Result{Output: "Streaming on."}, nil
	case "off":
		h.Machine.SetStreaming(false)
		return Result{Output: "Streaming off."}, nil
	}
	return Result{Output: "Usage: /stream on|off"}, nil
}

func (h *Host) cmdRetry() (Result, error) {
	if !h.Machine.Snapshot().Processing {
		return Result{Output: "Nothing to retry."}, nil
	}
	return Result{Retry: true}, nil
}
