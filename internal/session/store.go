// Package session persists conversation sets. Every backend loads and saves
// the whole set as one unit; the last writer wins.
package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/promptly-chat/promptly/internal/config"
	"github.com/promptly-chat/promptly/internal/conversation"
)

// Store loads and saves the complete conversation set.
type Store interface {
	Load(ctx context.Context) (*conversation.Set, error)
	Save(ctx context.Context, set *conversation.Set) error
	Close() error
}

// Backend names accepted by NewStore.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects and locates a backend.
type Config struct {
	Backend string
	// Path overrides the default location under the data directory.
	Path string
}

// DefaultConfig returns the JSON backend at its default path.
func DefaultConfig() Config {
	return Config{Backend: BackendJSON}
}

// NewStore opens the configured backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendJSON:
		path, err := resolvePath(cfg.Path, "history.json")
		if err != nil {
			return nil, err
		}
		return NewJSONStore(path), nil
	case BackendSQLite:
		path, err := resolvePath(cfg.Path, "history.db")
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

// DefaultPath returns where backend keeps its data when no path is configured.
func DefaultPath(backend string) (string, error) {
	switch backend {
	case "", BackendJSON:
		return resolvePath("", "history.json")
	case BackendSQLite:
		return resolvePath("", "history.db")
	}
	return "", nil
}

func resolvePath(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := config.GetDataDir()
	if err != nil {
		return "", fmt.Errorf("get data dir: %w", err)
	}
	return filepath.Join(dir, name), nil
}
