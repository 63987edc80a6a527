package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/promptly-chat/promptly/internal/conversation"
)

// JSONStore keeps the set in a single JSON document:
//
//	{"chats": {"chat_0": {...}}, "chat_counter": 1}
type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file.
func (s *JSONStore) Path() string {
	return s.path
}

type historyFile struct {
	Chats       map[string]chatRecord `json:"chats"`
	ChatCounter int                   `json:"chat_counter"`
}

type chatRecord struct {
	ChatStarted      bool                   `json:"chat_started"`
	Messages         []conversation.Message `json:"messages"`
	SelectedProvider *string                `json:"selected_provider"`
	SelectedModel    *string                `json:"selected_model"`
	Title            string                 `json:"title"`
	CreatedAt        *time.Time             `json:"created_at,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Load reads the file. A missing file yields an empty set.
func (s *JSONStore) Load(ctx context.Context) (*conversation.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return conversation.NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", s.path, err)
	}

	set := &conversation.Set{
		Conversations: make(map[string]*conversation.Conversation, len(file.Chats)),
		Counter:       file.ChatCounter,
	}
	for id, rec := range file.Chats {
		c := &conversation.Conversation{
			ID:       id,
			Started:  rec.ChatStarted,
			Provider: deref(rec.SelectedProvider),
			Model:    deref(rec.SelectedModel),
			Title:    rec.Title,
			Messages: rec.Messages,
		}
		if rec.CreatedAt != nil {
			c.CreatedAt = *rec.CreatedAt
		}
		set.Conversations[id] = c
	}
	set.Normalize()
	return set, nil
}

// Save replaces the file atomically: the document is written to a temporary
// file in the same directory and renamed over the old one.
func (s *JSONStore) Save(ctx context.Context, set *conversation.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file := historyFile{
		Chats:       make(map[string]chatRecord, set.Len()),
		ChatCounter: set.Counter,
	}
	for id, c := range set.Conversations {
		rec := chatRecord{
			ChatStarted:      c.Started,
			Messages:         c.Messages,
			SelectedProvider: optional(c.Provider),
			SelectedModel:    optional(c.Model),
			Title:            c.Title,
		}
		if rec.Messages == nil {
			rec.Messages = []conversation.Message{}
		}
		if !c.CreatedAt.IsZero() {
			created := c.CreatedAt
			rec.CreatedAt = &created
		}
		file.Chats[id] = rec
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error {
	return nil
}
