package llm

import "github.com/mattn/go-runewidth"

// truncate shortens s to at most maxWidth terminal cells, never splitting
// a rune.
func truncate(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "...")
}
