package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/promptly-chat/promptly/internal/conversation"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. The whole set is rewritten in
// one transaction on every save.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Schema for the history database.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    started BOOLEAN NOT NULL DEFAULT FALSE,
    provider TEXT,
    model TEXT,
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content TEXT NOT NULL,
    PRIMARY KEY (conversation_id, sequence)
);

-- Metadata table for the id counter
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// schemaVersion is the current schema version.
// - Fresh databases get the full schema from `schema` const and start at this version
// - Existing databases run migrations to reach this version
// Increment when adding new migrations.
const schemaVersion = 1

// migration represents a schema migration.
type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change. The base
// `schema` const always contains the FULL current schema.
var migrations = []migration{
	{
		version:     1,
		description: "add conversations.created_at",
		up: func(db *sql.DB) error {
			_, err := db.Exec("ALTER TABLE conversations ADD COLUMN created_at TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00'")
			if err != nil && !isDuplicateColumnError(err) {
				return err
			}
			return nil
		},
	},
}

// initSchema initializes the database schema and runs any pending migrations.
// Optimized for the common case: schema already current = single SELECT query.
func initSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion)
	if err == nil && currentVersion >= schemaVersion {
		return nil
	}
	return initSchemaFull(db, err, currentVersion)
}

// initSchemaFull handles schema creation and migrations.
func initSchemaFull(db *sql.DB, versionErr error, currentVersion int) error {
	// Detect a pre-versioning database before the base schema creates tables.
	var tableCount int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='conversations'
	`).Scan(&tableCount); err != nil {
		return fmt.Errorf("check conversations table: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if versionErr != nil && (versionErr == sql.ErrNoRows || strings.Contains(versionErr.Error(), "no such table")) {
		if tableCount > 0 {
			currentVersion = 0
		} else {
			currentVersion = schemaVersion
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentVersion); err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
	} else if versionErr != nil {
		return fmt.Errorf("get current version: %w", versionErr)
	}

	for _, m := range migrations {
		if m.version > currentVersion {
			if err := m.up(db); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
			if _, err := db.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
				return fmt.Errorf("update version to %d: %w", m.version, err)
			}
		}
	}
	return nil
}

// isDuplicateColumnError checks if an error is due to a column already existing.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") ||
		strings.Contains(errStr, "already exists")
}

// Load reads every conversation and its messages.
func (s *SQLiteStore) Load(ctx context.Context) (*conversation.Set, error) {
	set := conversation.NewSet()

	var counter sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'chat_counter'").Scan(&counter)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read counter: %w", err)
	}
	if counter.Valid {
		if n, err := strconv.Atoi(counter.String); err == nil {
			set.Counter = n
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started, provider, model, title, created_at
		FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	for rows.Next() {
		var c conversation.Conversation
		var provider, model sql.NullString
		if err := rows.Scan(&c.ID, &c.Started, &provider, &model, &c.Title, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Provider, c.Model = provider.String, model.String
		set.Conversations[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	msgRows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, role, content
		FROM messages
		ORDER BY conversation_id, sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer msgRows.Close()
	for msgRows.Next() {
		var convID string
		var msg conversation.Message
		if err := msgRows.Scan(&convID, &msg.ID, &msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if c := set.Conversations[convID]; c != nil {
			c.Messages = append(c.Messages, msg)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	set.Normalize()
	return set, nil
}

// Save replaces the stored set in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, set *conversation.Set) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}

	convStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, started, provider, model, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare conversation insert: %w", err)
	}
	defer convStmt.Close()
	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, sequence, id, role, content)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer msgStmt.Close()

	for _, c := range set.List() {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := convStmt.ExecContext(ctx, c.ID, c.Started, nullString(c.Provider), nullString(c.Model), c.Title, created); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
		for i, msg := range c.Messages {
			if _, err := msgStmt.ExecContext(ctx, c.ID, i, msg.ID, string(msg.Role), msg.Content); err != nil {
				return fmt.Errorf("insert message %s/%d: %w", c.ID, i, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('chat_counter', ?)`,
		strconv.Itoa(set.Counter)); err != nil {
		return fmt.Errorf("save counter: %w", err)
	}
	return tx.Commit()
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
