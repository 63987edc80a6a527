package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/config"
	"github.com/promptly-chat/promptly/internal/exitcode"
	"github.com/promptly-chat/promptly/internal/llm"
	"github.com/promptly-chat/promptly/internal/session"
	"github.com/promptly-chat/promptly/internal/ui"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, exitcode.BadConfig(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg, nil
}

// newLogger builds the process logger. The full-screen UI owns the
// terminal, so unless a log file is given its logs are discarded (or, with
// --debug, written under the cache directory).
func newLogger(interactive bool) (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	if debugLog {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	path := logFile
	if path == "" && interactive && debugLog {
		dir, err := config.GetCacheDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "debug.log")
	}

	switch {
	case path != "":
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
	case interactive:
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
}

// app is everything a command needs to talk to backends and history.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *llm.Registry
	creds    llm.Credentials
	catalog  *llm.Catalog
	store    session.Store
	closeLog func()
}

// newRegistry returns the built-in backends, plus the offline Debug backend
// when PROMPTLY_DEBUG_PROVIDER is set.
func newRegistry(logger *slog.Logger) *llm.Registry {
	entries := llm.BuiltinEntries(logger)
	if ui.ParseBoolDefault(os.Getenv("PROMPTLY_DEBUG_PROVIDER"), false) {
		entries = append(entries, llm.DebugEntry(logger))
	}
	return llm.MustRegistry(entries...)
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	registry := newRegistry(logger)
	creds := llm.Credentials(cfg.Credentials())
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		creds:    creds,
		catalog: llm.NewCatalog(llm.NewProber(registry, logger), creds, llm.CatalogOptions{
			TTL:    cfg.ProbeCacheTTL,
			Models: llm.DiskModelCache(),
			Logger: logger,
		}),
	}
}

func (a *app) openStore() error {
	store, err := session.NewStore(session.Config{
		Backend: a.cfg.History.Backend,
		Path:    a.cfg.History.Path,
	})
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.store = store
	return nil
}

func (a *app) Close() error {
	if a.closeLog != nil {
		defer a.closeLog()
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// machine loads the saved conversations and wraps them in a state machine.
func (a *app) machine(ctx context.Context) (*chat.Machine, error) {
	if a.store == nil {
		if err := a.openStore(); err != nil {
			return nil, err
		}
	}
	set, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return chat.NewMachine(set, nil, chat.Options{
		Registry:    a.registry,
		Credentials: a.creds,
		Store:       a.store,
		Streaming:   a.cfg.AppSettings.UseStreaming,
		Aggregator: llm.AggregatorConfig{
			MinChunk:    a.cfg.AppSettings.StreamMinChars,
			MaxInterval: a.cfg.AppSettings.StreamMaxInterval,
		},
		Logger: a.logger,
	}), nil
}

// resolveProvider maps a case-insensitive name to its registered spelling.
func (a *app) resolveProvider(name string) (string, error) {
	for _, n := range a.registry.Names() {
		if strings.EqualFold(n, name) {
			return n, nil
		}
	}
	return "", exitcode.BadUsage(fmt.Sprintf("unknown provider %q (known: %s)", name, strings.Join(a.registry.Names(), ", ")))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
