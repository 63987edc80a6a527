package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/promptly-chat/promptly/internal/config"
)

// Color palette - consistent across all TUI components
var (
	Green = lipgloss.Color("10") // success
	Red   = lipgloss.Color("9")  // error
	Grey  = lipgloss.Color("8")  // muted text
	Blue  = lipgloss.Color("4")  // headers, borders
	White = lipgloss.Color("15") // header text
)

// Status indicators
const (
	ActiveIcon   = "●"
	InactiveIcon = "○"
	SuccessIcon  = "✓"
	FailIcon     = "✗"
)

// Theme is the set of colors the chat UI draws with.
type Theme struct {
	Primary   lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	UserMsgBg lipgloss.Color
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		Primary:   Blue,
		Muted:     Grey,
		Success:   Green,
		Error:     Red,
		UserMsgBg: lipgloss.Color("236"),
	}
}

// ThemeFromConfig applies the configured overrides to the default theme.
func ThemeFromConfig(cfg config.ThemeConfig) Theme {
	t := DefaultTheme()
	override := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	override(&t.Primary, cfg.Primary)
	override(&t.Muted, cfg.Muted)
	override(&t.Success, cfg.Success)
	override(&t.Error, cfg.Error)
	override(&t.UserMsgBg, cfg.UserMsgBg)
	return t
}

// Styles returns styled text helpers bound to a renderer
type Styles struct {
	renderer *lipgloss.Renderer
	Theme    Theme

	// Text styles
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Success     lipgloss.Style
	Error       lipgloss.Style
	Muted       lipgloss.Style
	Bold        lipgloss.Style
	Highlighted lipgloss.Style

	// Chat styles
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserMessage    lipgloss.Style
	ErrorMessage   lipgloss.Style
	StatusBar      lipgloss.Style
	InputBorder    lipgloss.Style
}

// NewStyles creates a Styles instance for the given output and theme.
func NewStyles(output io.Writer, theme Theme) *Styles {
	r := lipgloss.NewRenderer(output)
	if PlainOutput() {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Styles{
		renderer: r,
		Theme:    theme,

		Title: r.NewStyle().
			Bold(true).
			Foreground(White),

		Subtitle: r.NewStyle().
			Foreground(theme.Muted),

		Success: r.NewStyle().
			Foreground(theme.Success),

		Error: r.NewStyle().
			Foreground(theme.Error),

		Muted: r.NewStyle().
			Foreground(theme.Muted),

		Bold: r.NewStyle().
			Bold(true),

		Highlighted: r.NewStyle().
			Bold(true).
			Foreground(theme.Success),

		UserLabel: r.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		AssistantLabel: r.NewStyle().
			Bold(true).
			Foreground(theme.Success),

		UserMessage: r.NewStyle().
			Background(theme.UserMsgBg).
			Padding(0, 1),

		ErrorMessage: r.NewStyle().
			Foreground(theme.Error).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(theme.Error).
			PaddingLeft(1),

		StatusBar: r.NewStyle().
			Foreground(theme.Muted),

		InputBorder: r.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Primary),
	}
}

// DefaultStyles returns styles for stderr with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(os.Stderr, DefaultTheme())
}

// FormatActive returns a styled active/inactive indicator
func (s *Styles) FormatActive(active bool, label string) string {
	if active {
		return s.Success.Render(ActiveIcon + " " + label)
	}
	return s.Muted.Render(InactiveIcon + " " + label)
}

// FormatResult returns a styled success/fail result
func (s *Styles) FormatResult(success bool, msg string) string {
	if success {
		return s.Success.Render(SuccessIcon+" ") + msg
	}
	return s.Error.Render(FailIcon+" ") + msg
}

// Truncate shortens s to maxWidth display cells with an ellipsis.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return runewidth.Truncate(s, maxWidth, "…")
}
