package chat

import (
	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
)

// Summary is the listing view of one conversation.
type Summary struct {
	ID         string
	Title      string
	Started    bool
	Provider   string
	Model      string
	Messages   int
	Active     bool
	Processing bool
}

// Snapshot is a point-in-time copy of the control state.
type Snapshot struct {
	ActiveID     string
	Processing   bool
	ProcessingID string
	Completed    int
}

// Snapshot returns a copy of the control state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ActiveID:     m.state.ActiveID,
		Processing:   m.state.Processing,
		ProcessingID: m.state.ProcessingID,
		Completed:    m.state.CompletedCount(),
	}
}

// Active returns a copy of the active conversation.
func (m *Machine) Active() (*conversation.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.set.Get(m.state.ActiveID)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

// Conversation returns a copy of conversation id.
func (m *Machine) Conversation(id string) (*conversation.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.set.Get(id)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

// Visible returns the display window of the active conversation.
func (m *Machine) Visible() []conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.set.Get(m.state.ActiveID)
	if c == nil {
		return nil
	}
	return append([]conversation.Message(nil), c.Visible()...)
}

// Conversations lists every conversation in listing order.
func (m *Machine) Conversations() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.set.List()
	out := make([]Summary, 0, len(list))
	for _, c := range list {
		out = append(out, Summary{
			ID:         c.ID,
			Title:      c.Title,
			Started:    c.Started,
			Provider:   c.Provider,
			Model:      c.Model,
			Messages:   len(c.Messages),
			Active:     c.ID == m.state.ActiveID,
			Processing: m.state.IsProcessing(c.ID),
		})
	}
	return out
}

// Streaming reports whether replies are generated incrementally.
func (m *Machine) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// SetStreaming switches between incremental and blocking generation. It
// takes effect from the next generation.
func (m *Machine) SetStreaming(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = on
}

// Neighbor returns the id offset positions away from the active one in
// listing order, wrapping around. It returns "" when there is nothing to
// move to.
func (m *Machine) Neighbor(offset int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.set.IDs()
	if len(ids) == 0 {
		return ""
	}
	pos := 0
	for i, id := range ids {
		if id == m.state.ActiveID {
			pos = i
			break
		}
	}
	n := len(ids)
	return ids[((pos+offset)%n+n)%n]
}

// Registry returns the provider table the machine generates with.
func (m *Machine) Registry() *llm.Registry {
	return m.registry
}
