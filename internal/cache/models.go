// Package cache keeps short-lived copies of provider lookups: an on-disk
// model list per provider and an in-process memo for probe results.
package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/promptly-chat/promptly/internal/config"
)

// DefaultModelTTL is how long a listed model catalog stays fresh.
const DefaultModelTTL = 5 * time.Minute

// ErrNotCached is returned when no cache file exists for a key.
var ErrNotCached = errors.New("no cached models")

// ModelCache is one provider's cached model list.
type ModelCache struct {
	Provider  string    `json:"provider"`
	Models    []string  `json:"models"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IsCacheValid reports whether c was fetched within ttl.
func IsCacheValid(c *ModelCache, ttl time.Duration) bool {
	if c == nil || c.FetchedAt.IsZero() {
		return false
	}
	return time.Since(c.FetchedAt) < ttl
}

// ReadModelCache loads the cached model list for key from the cache directory.
func ReadModelCache(key string) (*ModelCache, error) {
	dir, err := config.GetCacheDir()
	if err != nil {
		return nil, err
	}
	return readModelCacheFromDir(dir, key)
}

// WriteModelCache stores models for key in the cache directory.
func WriteModelCache(key string, models []string) error {
	dir, err := config.GetCacheDir()
	if err != nil {
		return err
	}
	return writeModelCacheToDir(dir, key, models, time.Now())
}

// ClearModelCache removes the cached list for key. A missing file is not an
// error.
func ClearModelCache(key string) error {
	dir, err := config.GetCacheDir()
	if err != nil {
		return err
	}
	err = os.Remove(modelCachePath(dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func modelCachePath(dir, key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, key)
	return filepath.Join(dir, "models", key+".json")
}

func readModelCacheFromDir(dir, key string) (*ModelCache, error) {
	data, err := os.ReadFile(modelCachePath(dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	var c ModelCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Models == nil {
		c.Models = []string{}
	}
	return &c, nil
}

func writeModelCacheToDir(dir, key string, models []string, now time.Time) error {
	path := modelCachePath(dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if models == nil {
		models = []string{}
	}
	data, err := json.MarshalIndent(ModelCache{Provider: key, Models: models, FetchedAt: now}, "", "  ")
	if err != nil {
		return err
	}
	// Atomic write via temp file + rename
	tmp, err := os.CreateTemp(filepath.Dir(path), "models-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
