package llm

import (
	"context"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the wire-level view of a conversation turn. Only the role and
// the text content ever reach a backend.
type Message struct {
	Role    Role
	Content string
}

// ErrorPrefix marks text that carries a failure instead of a model reply.
const ErrorPrefix = "Error:"

// ErrorText renders err as error-marked text.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if strings.HasPrefix(msg, ErrorPrefix) {
		return msg
	}
	return ErrorPrefix + " " + msg
}

// IsErrorText reports whether text carries the error marker.
func IsErrorText(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ErrorPrefix)
}

// StripErrorPrefix returns the failure description without the marker.
func StripErrorPrefix(text string) string {
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimPrefix(text, ErrorPrefix))
}

// Credentials maps a provider credential key (e.g. "openai") to its value.
// A missing or empty value means "not configured".
type Credentials map[string]string

// Get returns the trimmed credential for key.
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[key])
}

// Provider is implemented by each backend using its native SDK conventions.
// Implementations return errors freely; Adapter turns them into data.
type Provider interface {
	// Name returns the display name, e.g. "OpenAI".
	Name() string

	// Probe performs a cheap reachability or credential validity check.
	Probe(ctx context.Context, credential string) error

	// ListModels returns the model identifiers the backend offers.
	ListModels(ctx context.Context, credential string) ([]string, error)

	// Chat performs a blocking completion and returns the reply text.
	Chat(ctx context.Context, model string, messages []Message, credential string) (string, error)

	// Stream starts an incremental completion.
	Stream(ctx context.Context, model string, messages []Message, credential string) (Stream, error)
}

// protocolMessages drops turns that carry no text. The remaining fields are
// exactly what backends accept.
func protocolMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "" || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// splitSystem separates system turns from the conversation, joining them
// into a single instruction string for backends that take it out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
