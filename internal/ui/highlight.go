package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/x/ansi"
)

// highlighterCache caches highlighters by language to avoid repeated lexer lookups
var (
	highlighterCache   = make(map[string]*Highlighter)
	highlighterCacheMu sync.RWMutex
)

// Highlighter colors source code for terminal display.
type Highlighter struct {
	lexer chroma.Lexer
	style *chroma.Style
}

// NewHighlighter returns a highlighter for the fenced-code language tag
// (e.g. "go", "python"). Returns nil if the language is not recognized.
func NewHighlighter(language string) *Highlighter {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return nil
	}

	highlighterCacheMu.RLock()
	if h, ok := highlighterCache[language]; ok {
		highlighterCacheMu.RUnlock()
		return h
	}
	highlighterCacheMu.RUnlock()

	var h *Highlighter
	if lexer := lexers.Get(language); lexer != nil {
		// monokai has good contrast on dark backgrounds
		style := styles.Get("monokai")
		if style == nil {
			style = styles.Fallback
		}
		h = &Highlighter{lexer: chroma.Coalesce(lexer), style: style}
	}

	// Cache nil results too to avoid repeated lookups
	highlighterCacheMu.Lock()
	highlighterCache[language] = h
	highlighterCacheMu.Unlock()
	return h
}

// HighlightLine applies syntax highlighting to a line without a background color.
func (h *Highlighter) HighlightLine(line string) string {
	if h == nil {
		return line
	}

	iterator, err := h.lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}

	var buf strings.Builder
	formatter := &noBgFormatter{style: h.style}
	if err := formatter.Format(&buf, iterator); err != nil {
		return line
	}
	return buf.String()
}

// noBgFormatter is a Chroma formatter that applies only foreground colors
type noBgFormatter struct {
	style *chroma.Style
}

func (f *noBgFormatter) Format(w io.Writer, iterator chroma.Iterator) error {
	for token := iterator(); token != chroma.EOF; token = iterator() {
		value := strings.TrimRight(token.Value, "\n")
		if value == "" {
			continue
		}

		entry := f.style.Get(token.Type)

		var codes []string
		if entry.Colour.IsSet() {
			codes = append(codes, fmt.Sprintf("38;2;%d;%d;%d", entry.Colour.Red(), entry.Colour.Green(), entry.Colour.Blue()))
		}
		if entry.Bold == chroma.Yes {
			codes = append(codes, "1")
		}
		if entry.Italic == chroma.Yes {
			codes = append(codes, "3")
		}
		if entry.Underline == chroma.Yes {
			codes = append(codes, "4")
		}

		if len(codes) > 0 {
			fmt.Fprintf(w, "\x1b[%sm%s\x1b[0m", strings.Join(codes, ";"), value)
		} else {
			fmt.Fprint(w, value)
		}
	}
	return nil
}

// StripANSI removes escape sequences from s. Provider output passes through
// it before display so a reply cannot drive the terminal.
func StripANSI(s string) string {
	return ansi.Strip(s)
}

// ANSILen returns the display width of a string, ignoring ANSI codes
func ANSILen(s string) int {
	return ansi.StringWidth(s)
}
