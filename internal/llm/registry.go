package llm

import (
	"fmt"
	"log/slog"
)

// Entry binds a provider name to its adapter and credential requirements.
type Entry struct {
	Name          string
	CredentialKey string
	// RequiresCredential means an absent credential disqualifies the
	// provider without calling it. When false the probe must still succeed
	// functionally (e.g. a local server being reachable).
	RequiresCredential bool
	Adapter            *Adapter
}

// Registry is an immutable table of providers.
type Registry struct {
	entries []Entry
	byName  map[string]int
}

// NewRegistry builds a registry from entries, preserving their order.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("registry entry without a name")
		}
		if e.Adapter == nil {
			return nil, fmt.Errorf("provider %s: adapter is nil", e.Name)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("provider %s registered twice", e.Name)
		}
		r.byName[e.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on invalid input. Intended for
// static tables.
func MustRegistry(entries ...Entry) *Registry {
	r, err := NewRegistry(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// BuiltinEntries returns the six built-in backends in display order.
func BuiltinEntries(logger *slog.Logger) []Entry {
	return []Entry{
		{Name: "OpenAI", CredentialKey: "openai", RequiresCredential: true, Adapter: NewAdapter(NewOpenAIProvider(), logger)},
		{Name: "Anthropic", CredentialKey: "anthropic", RequiresCredential: true, Adapter: NewAdapter(NewAnthropicProvider(), logger)},
		{Name: "Gemini", CredentialKey: "gemini", RequiresCredential: true, Adapter: NewAdapter(NewGeminiProvider(), logger)},
		{Name: "Mistral", CredentialKey: "mistral", RequiresCredential: true, Adapter: NewAdapter(NewMistralProvider(), logger)},
		{Name: "Deepseek", CredentialKey: "deepseek", RequiresCredential: true, Adapter: NewAdapter(NewDeepseekProvider(), logger)},
		{Name: "Ollama", CredentialKey: "ollama", RequiresCredential: false, Adapter: NewAdapter(NewOllamaProvider(), logger)},
	}
}

// DebugEntry is the offline backend used to exercise hosts without keys.
func DebugEntry(logger *slog.Logger) Entry {
	return Entry{Name: "Debug", CredentialKey: "debug", RequiresCredential: false, Adapter: NewAdapter(NewDebugProvider(), logger)}
}

// DefaultRegistry returns the six built-in backends.
func DefaultRegistry(logger *slog.Logger) *Registry {
	return MustRegistry(BuiltinEntries(logger)...)
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the table.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// CredentialFor returns the configured credential for provider name.
func (r *Registry) CredentialFor(name string, creds Credentials) string {
	e, ok := r.Lookup(name)
	if !ok {
		return ""
	}
	return creds.Get(e.CredentialKey)
}
