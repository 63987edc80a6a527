package session

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
)

// Format is an export output format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts the usual spellings of each format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want md, html or yaml)", s)
}

// ExportOptions configures conversation export.
type ExportOptions struct {
	IncludeSystem bool // Include system messages in export
}

// Export renders c in format.
func Export(c *conversation.Conversation, format Format, opts ExportOptions) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(ExportToMarkdown(c, opts)), nil
	case FormatHTML:
		return ExportToHTML(c, opts)
	case FormatYAML:
		return ExportToYAML(c, opts)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// escapeTableCell escapes special characters for markdown table cells.
func escapeTableCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// ExportToMarkdown exports a conversation to a readable markdown document.
func ExportToMarkdown(c *conversation.Conversation, opts ExportOptions) string {
	var b strings.Builder

	title := c.Title
	if title == "" {
		title = c.ID
	}
	fmt.Fprintf(&b, "# Conversation: %s\n\n", escapeTableCell(title))
	b.WriteString("> Exported from promptly\n\n")

	b.WriteString("## Setup\n\n")
	b.WriteString("| | |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| **ID** | %s |\n", escapeTableCell(c.ID))
	if c.Started {
		fmt.Fprintf(&b, "| **Provider** | %s |\n", escapeTableCell(c.Provider))
		fmt.Fprintf(&b, "| **Model** | %s |\n", escapeTableCell(c.Model))
	}
	if !c.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "| **Created** | %s |\n", c.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "| **Messages** | %d |\n\n", len(c.Messages))

	b.WriteString("---\n\n")
	b.WriteString("## Conversation\n\n")

	for _, msg := range c.Messages {
		switch msg.Role {
		case conversation.RoleSystem:
			if !opts.IncludeSystem {
				continue
			}
			b.WriteString("### System\n\n")
		case conversation.RoleUser:
			b.WriteString("### User\n\n")
		default:
			b.WriteString("### Assistant\n\n")
		}
		if msg.Role == conversation.RoleAssistant && llm.IsErrorText(msg.Content) {
			// Failures render as a quote so they stand apart from replies.
			for _, line := range strings.Split(msg.Content, "\n") {
				b.WriteString("> " + line + "\n")
			}
		} else {
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n---\n\n")
	}

	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ExportToHTML renders the markdown export as a standalone HTML page.
func ExportToHTML(c *conversation.Conversation, opts ExportOptions) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(ExportToMarkdown(c, opts)), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(c.Title))
	out.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}" +
		"pre{background:#f4f4f4;padding:.75rem;overflow-x:auto}blockquote{color:#a00;border-left:3px solid #a00;margin-left:0;padding-left:1rem}" +
		"table{border-collapse:collapse}td{padding:.25rem .75rem}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

type yamlMessage struct {
	ID      string `yaml:"id"`
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

type yamlConversation struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Started  bool          `yaml:"started"`
	Provider string        `yaml:"provider,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	Created  string        `yaml:"created,omitempty"`
	Messages []yamlMessage `yaml:"messages"`
}

// ExportToYAML dumps the conversation as structured YAML.
func ExportToYAML(c *conversation.Conversation, opts ExportOptions) ([]byte, error) {
	doc := yamlConversation{
		ID:       c.ID,
		Title:    c.Title,
		Started:  c.Started,
		Provider: c.Provider,
		Model:    c.Model,
		Messages: []yamlMessage{},
	}
	if !c.CreatedAt.IsZero() {
		doc.Created = c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	for _, msg := range c.Messages {
		if msg.Role == conversation.RoleSystem && !opts.IncludeSystem {
			continue
		}
		doc.Messages = append(doc.Messages, yamlMessage{ID: msg.ID, Role: string(msg.Role), Content: msg.Content})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return out, nil
}
