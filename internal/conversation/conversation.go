// Package conversation holds the in-memory chat history model: messages,
// conversations and the id-minting set that is persisted as a unit.
package conversation

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// VisibleMessages is how many trailing messages display consumers receive.
const VisibleMessages = 20

// DefaultTitle is the title of a conversation that has not been started.
const DefaultTitle = "New Chat"

// Message is one turn. Its ID is minted once and never recomputed.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// LegacyMessageID derives the id assigned to messages persisted before ids
// existed: position plus a digest of the content.
func LegacyMessageID(index int, content string) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%d_%s", index, hex.EncodeToString(sum[:]))
}

// Conversation is a single chat.
type Conversation struct {
	ID        string    `json:"id"`
	Started   bool      `json:"started"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// Start performs the one-time start transition. It reports false and
// changes nothing if the conversation was already started.
func (c *Conversation) Start(provider, model string) bool {
	if c.Started {
		return false
	}
	c.Started = true
	c.Provider = provider
	c.Model = model
	c.Title = fmt.Sprintf("%s - %s", provider, model)
	c.Messages = nil
	return true
}

// Append adds msg to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// Last returns the final message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Visible returns the trailing display window. The returned slice must not
// be modified.
func (c *Conversation) Visible() []Message {
	if len(c.Messages) > VisibleMessages {
		return c.Messages[len(c.Messages)-VisibleMessages:]
	}
	return c.Messages
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// Set is every conversation plus the counter used to mint ids.
type Set struct {
	Conversations map[string]*Conversation
	Counter       int
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{Conversations: make(map[string]*Conversation)}
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	cp := &Set{Conversations: make(map[string]*Conversation, len(s.Conversations)), Counter: s.Counter}
	for id, c := range s.Conversations {
		if c != nil {
			cp.Conversations[id] = c.Clone()
		}
	}
	return cp
}

// New mints a conversation id, adds an unstarted conversation and returns it.
func (s *Set) New() *Conversation {
	if s.Conversations == nil {
		s.Conversations = make(map[string]*Conversation)
	}
	id := fmt.Sprintf("chat_%d", s.Counter)
	// A hand-edited history may already hold this id.
	for s.Conversations[id] != nil {
		s.Counter++
		id = fmt.Sprintf("chat_%d", s.Counter)
	}
	s.Counter++
	c := &Conversation{ID: id, Title: DefaultTitle, CreatedAt: time.Now()}
	s.Conversations[id] = c
	return c
}

// Get returns the conversation with id, or nil.
func (s *Set) Get(id string) *Conversation {
	if s == nil || id == "" {
		return nil
	}
	return s.Conversations[id]
}

// Delete removes id and reports whether it existed.
func (s *Set) Delete(id string) bool {
	if _, ok := s.Conversations[id]; !ok {
		return false
	}
	delete(s.Conversations, id)
	return true
}

// Len returns the number of conversations.
func (s *Set) Len() int {
	return len(s.Conversations)
}

// IDs returns conversation ids in listing order: by the number embedded in
// the id, then lexically.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.Conversations))
	for id := range s.Conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, okI := idNumber(ids[i])
		nj, okJ := idNumber(ids[j])
		switch {
		case okI && okJ && ni != nj:
			return ni < nj
		case okI != okJ:
			return okI
		}
		return ids[i] < ids[j]
	})
	return ids
}

// List returns conversations in listing order.
func (s *Set) List() []*Conversation {
	ids := s.IDs()
	out := make([]*Conversation, len(ids))
	for i, id := range ids {
		out[i] = s.Conversations[id]
	}
	return out
}

// First returns the first id in listing order, or "" when empty.
func (s *Set) First() string {
	ids := s.IDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Normalize repairs data loaded from older or hand-edited files: missing
// message ids are derived once, unstarted conversations lose any messages,
// and the counter is raised past every existing id.
func (s *Set) Normalize() {
	if s.Conversations == nil {
		s.Conversations = make(map[string]*Conversation)
	}
	for id, c := range s.Conversations {
		if c == nil {
			delete(s.Conversations, id)
			continue
		}
		c.ID = id
		if c.Title == "" {
			c.Title = DefaultTitle
		}
		if !c.Started {
			c.Provider, c.Model = "", ""
			c.Messages = nil
		}
		for i := range c.Messages {
			if c.Messages[i].ID == "" {
				c.Messages[i].ID = LegacyMessageID(i, c.Messages[i].Content)
			}
		}
		if n, ok := idNumber(id); ok && n >= s.Counter {
			s.Counter = n + 1
		}
	}
}

func idNumber(id string) (int, bool) {
	i := strings.LastIndexFunc(id, func(r rune) bool { return r < '0' || r > '9' })
	digits := id[i+1:]
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
