package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
)

// RunPlain is the line-oriented host used when output is not a terminal.
// Each input line is a slash command or a message; replies are written as
// plain text, streamed fragments as they arrive.
func RunPlain(ctx context.Context, host *Host, in io.Reader, out io.Writer) error {
	if c, ok := host.Machine.Active(); ok {
		fmt.Fprintf(out, "[%s] %s\n", c.ID, c.Title)
	} else {
		fmt.Fprintln(out, "No conversation. Type /new to create one.")
	}

	// A reply may still be owed from a previous run of the same state.
	if err := generatePlain(ctx, host.Machine, out); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if IsCommand(line) {
			res, err := host.Execute(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if res.Output != "" {
				fmt.Fprintln(out, res.Output)
			}
			if res.Quit {
				return nil
			}
			if res.Retry {
				if err := generatePlain(ctx, host.Machine, out); err != nil {
					return err
				}
			}
			continue
		}

		err := host.Machine.Submit(ctx, line)
		switch {
		case errors.Is(err, chat.ErrBusy):
			fmt.Fprintln(out, "A reply is still owed. Type /retry to ask again.")
			continue
		case errors.Is(err, chat.ErrNoActiveConversation):
			fmt.Fprintln(out, "No active conversation. Type /new to create one.")
			continue
		case errors.Is(err, chat.ErrNotStarted):
			fmt.Fprintln(out, "Start this conversation first: /start <provider> <model>")
			continue
		case err != nil:
			return err
		}
		if err := generatePlain(ctx, host.Machine, out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// generatePlain runs one generation, printing the reply.
func generatePlain(ctx context.Context, machine *chat.Machine, out io.Writer) error {
	snap := machine.Snapshot()
	if !snap.Processing {
		return nil
	}

	streamed := false
	appended, err := machine.Generate(ctx, func(_ string, frag llm.Fragment) {
		if frag.Err {
			return
		}
		streamed = true
		io.WriteString(out, frag.Text)
	})
	if streamed {
		fmt.Fprintln(out)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	if !appended {
		return nil
	}

	c, ok := machine.Conversation(snap.ProcessingID)
	if !ok {
		return nil
	}
	last, ok := c.Last()
	if !ok || last.Role != conversation.RoleAssistant {
		return nil
	}
	// Streamed text is already on screen; failures still need reporting.
	if !streamed || llm.IsErrorText(last.Content) {
		fmt.Fprintln(out, last.Content)
	}
	return nil
}
