package ui

import (
	"fmt"
	"strings"
	"time"
)

// StreamingIndicator renders a consistent status line while a reply is
// being generated.
type StreamingIndicator struct {
	Spinner    string // spinner.View() output
	Phase      string // "Waiting", "Streaming"
	Elapsed    time.Duration
	Runes      int    // received so far; 0 = don't show
	Status     string // optional status (e.g., "OpenAI - gpt-4o")
	ShowCancel bool   // show "(esc to cancel)"
}

// Render returns the formatted streaming indicator string
func (s StreamingIndicator) Render(styles *Styles) string {
	var b strings.Builder

	b.WriteString(s.Spinner)
	b.WriteString(" ")
	b.WriteString(s.Phase)
	b.WriteString("...")

	if s.Runes > 0 {
		fmt.Fprintf(&b, " %d chars |", s.Runes)
	}

	fmt.Fprintf(&b, " %.1fs", s.Elapsed.Seconds())

	if s.Status != "" {
		b.WriteString(" | ")
		b.WriteString(s.Status)
	}

	if s.ShowCancel {
		b.WriteString(" ")
		b.WriteString(styles.Muted.Render("(esc to cancel)"))
	}

	return b.String()
}
