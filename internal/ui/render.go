package ui

import (
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

// codeIndent is the left margin applied to fenced code blocks.
const codeIndent = 2

// RenderContent lays out message text for a terminal of the given width.
// Prose is word-wrapped; fenced code blocks keep their line breaks, are
// indented, hard-wrapped and, when the fence names a known language,
// syntax highlighted. Escape sequences in the input are removed first.
func RenderContent(content string, width int) string {
	content = StripANSI(content)
	if width <= 0 {
		return content
	}

	var out []string
	var prose []string
	flushProse := func() {
		if len(prose) == 0 {
			return
		}
		out = append(out, wordwrap.String(strings.Join(prose, "\n"), width))
		prose = prose[:0]
	}

	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		fence, lang, ok := openFence(line)
		if !ok {
			prose = append(prose, line)
			continue
		}
		flushProse()

		var code []string
		closed := false
		for i++; i < len(lines); i++ {
			if strings.HasPrefix(strings.TrimSpace(lines[i]), fence) {
				closed = true
				break
			}
			code = append(code, lines[i])
		}
		out = append(out, renderCode(code, lang, width))
		if !closed {
			break
		}
	}
	flushProse()
	return strings.Join(out, "\n")
}

func openFence(line string) (fence, lang string, ok bool) {
	trimmed := strings.TrimSpace(line)
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, f) {
			return f, strings.TrimSpace(strings.TrimLeft(trimmed, f[:1])), true
		}
	}
	return "", "", false
}

func renderCode(code []string, lang string, width int) string {
	h := NewHighlighter(lang)
	inner := width - codeIndent
	if inner < 1 {
		inner = 1
	}
	rendered := make([]string, len(code))
	for i, line := range code {
		line = strings.ReplaceAll(line, "\t", "    ")
		rendered[i] = wrap.String(h.HighlightLine(line), inner)
	}
	return indent.String(strings.Join(rendered, "\n"), codeIndent)
}
