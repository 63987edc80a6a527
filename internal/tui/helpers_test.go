package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
	"github.com/promptly-chat/promptly/internal/session"
	"github.com/promptly-chat/promptly/internal/ui"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestHost(t *testing.T, mock *llm.MockProvider, streaming bool) *Host {
	t.Helper()
	reg := llm.MustRegistry(llm.Entry{
		Name:          "Mock",
		CredentialKey: "mock",
		Adapter:       llm.NewAdapter(mock, quietLogger()),
	})
	machine := chat.NewMachine(conversation.NewSet(), nil, chat.Options{
		Registry:   reg,
		Store:      session.NewMemoryStore(),
		Streaming:  streaming,
		Aggregator: llm.AggregatorConfig{MinChunk: 1, MaxInterval: time.Hour},
		Logger:     quietLogger(),
	})
	catalog := llm.NewCatalog(llm.NewProber(reg, quietLogger()), llm.Credentials{}, llm.CatalogOptions{
		TTL:    time.Minute,
		Logger: quietLogger(),
	})
	return &Host{Machine: machine, Catalog: catalog}
}

func startedHost(t *testing.T, mock *llm.MockProvider, streaming bool) *Host {
	t.Helper()
	h := newTestHost(t, mock, streaming)
	ctx := context.Background()
	if _, err := h.Machine.NewConversation(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, err := h.Machine.Start(ctx, "Mock", "m1"); err != nil || !ok {
		t.Fatalf("Start = %v, %v", ok, err)
	}
	return h
}

func newTestModel(t *testing.T, h *Host) *Model {
	t.Helper()
	m := New(context.Background(), Options{
		Machine: h.Machine,
		Catalog: h.Catalog,
		Styles:  ui.NewStyles(io.Discard, ui.DefaultTheme()),
		Logger:  quietLogger(),
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

// collect runs cmd and any commands batched inside it, returning the
// messages they produce. Ticks and blinks return immediately.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func findMsg[T tea.Msg](t *testing.T, msgs []tea.Msg) T {
	t.Helper()
	for _, msg := range msgs {
		if v, ok := msg.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T among %d messages", zero, len(msgs))
	return zero
}

func typeText(m *Model, text string) {
	m.textarea.SetValue(text)
}

var errDiskFull = errors.New("disk full")

type failingSaver struct{}

func (failingSaver) Save(context.Context, *conversation.Set) error { return errDiskFull }
