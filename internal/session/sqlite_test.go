package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/promptly-chat/promptly/internal/conversation"
)

func sampleSet() *conversation.Set {
	set := conversation.NewSet()
	started := set.New()
	started.Start("OpenAI", "gpt-4o")
	started.Append(conversation.NewMessage(conversation.RoleUser, "hello"))
	started.Append(conversation.NewMessage(conversation.RoleAssistant, "hi there"))
	set.New()
	return set
}

func assertSameSet(t *testing.T, want, got *conversation.Set) {
	t.Helper()
	if got.Counter != want.Counter {
		t.Errorf("counter = %d, want %d", got.Counter, want.Counter)
	}
	if got.Len() != want.Len() {
		t.Fatalf("len = %d, want %d", got.Len(), want.Len())
	}
	for id, w := range want.Conversations {
		g := got.Get(id)
		if g == nil {
			t.Errorf("missing %s", id)
			continue
		}
		if g.Started != w.Started || g.Provider != w.Provider || g.Model != w.Model || g.Title != w.Title {
			t.Errorf("%s = %+v, want %+v", id, g, w)
		}
		if len(g.Messages) != len(w.Messages) {
			t.Errorf("%s has %d messages, want %d", id, len(g.Messages), len(w.Messages))
			continue
		}
		for i := range w.Messages {
			if g.Messages[i] != w.Messages[i] {
				t.Errorf("%s message %d = %+v, want %+v", id, i, g.Messages[i], w.Messages[i])
			}
		}
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "custom", "history.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected database file at %q: %v", dbPath, err)
	}

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if empty.Len() != 0 || empty.Counter != 0 {
		t.Errorf("fresh database = %+v", empty)
	}

	set := sampleSet()
	if err := store.Save(ctx, set); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameSet(t, set, loaded)

	// A second save replaces rather than appends.
	delete(set.Conversations, "chat_1")
	set.Get("chat_0").Append(conversation.NewMessage(conversation.RoleUser, "again"))
	if err := store.Save(ctx, set); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	loaded, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameSet(t, set, loaded)
}

func TestSQLiteStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	set := sampleSet()
	if err := store.Save(ctx, set); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertSameSet(t, set, loaded)
}

func TestSQLiteStoreMigratesUnversionedDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE conversations (
		id TEXT PRIMARY KEY, started BOOLEAN NOT NULL DEFAULT FALSE,
		provider TEXT, model TEXT, title TEXT NOT NULL)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO conversations (id, started, title) VALUES ('chat_4', FALSE, 'New Chat')`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open old database: %v", err)
	}
	defer store.Close()

	set, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if set.Get("chat_4") == nil {
		t.Fatal("existing conversation lost in migration")
	}
	if set.Counter != 5 {
		t.Errorf("counter = %d, want 5", set.Counter)
	}

	var version int
	if err := store.db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}
}
