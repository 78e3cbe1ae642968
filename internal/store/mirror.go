// ABOUTME: SQLite transcript mirror using modernc.org/sqlite
// ABOUTME: Persists a local copy of conversations and messages with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/fold-console/internal/stream"
)

// ErrNotFound is returned when a requested conversation has no local record
var ErrNotFound = errors.New("not found")

// Mirror is the local transcript database. The gateway owns the canonical
// history; the mirror exists so transcripts survive offline and can be
// searched and exported without a round trip.
type Mirror struct {
	db     *sql.DB
	logger *slog.Logger
}

// Conversation is a locally mirrored conversation record
type Conversation struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// SearchHit is a message that matched a transcript search
type SearchHit struct {
	ConversationID string
	Message        *stream.Message
}

// NewMirror opens the transcript database at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewMirror(path string, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	m := &Mirror{
		db:     db,
		logger: logger,
	}

	if err := m.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript mirror initialized", "path", path)
	return m, nil
}

// createSchema creates the database tables if they don't exist
func (m *Mirror) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			origin          TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL,

			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			CHECK (origin IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
	`

	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (m *Mirror) Close() error {
	return m.db.Close()
}

// SaveMessage upserts a message into the mirror. The same message ID arriving
// again overwrites the stored content, which is how a settled stream replaces
// the partial text mirrored earlier. A conversation row is created on demand
// so the mirror never rejects messages for conversations it has not seen.
func (m *Mirror) SaveMessage(ctx context.Context, conversationID string, msg *stream.Message) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, updated_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
	`, conversationID, now)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, origin, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content
	`, msg.ID, conversationID, string(msg.Origin), msg.Text,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SetTitle records a conversation title locally
func (m *Mirror) SetTitle(ctx context.Context, conversationID, title string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at
	`, conversationID, title, now)
	if err != nil {
		return fmt.Errorf("setting title: %w", err)
	}
	return nil
}

// ListConversations returns mirrored conversations, most recently updated first
func (m *Mirror) ListConversations(ctx context.Context) ([]*Conversation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, title, updated_at FROM conversations
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var updatedAt string
		if err := rows.Scan(&conv.ID, &conv.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// ConversationMessages returns all mirrored messages for a conversation in
// chronological order. A conversation with no local record returns ErrNotFound.
func (m *Mirror) ConversationMessages(ctx context.Context, conversationID string) ([]*stream.Message, error) {
	var exists int
	err := m.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, origin, content, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// SearchMessages returns messages whose content contains the query substring,
// case-insensitive, newest first, capped at limit.
func (m *Mirror) SearchMessages(ctx context.Context, query string, limit int) ([]*SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT conversation_id, id, origin, content, created_at FROM messages
		WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	var hits []*SearchHit
	for rows.Next() {
		var hit SearchHit
		msg := &stream.Message{Terminal: true}
		var origin, createdAt string
		if err := rows.Scan(&hit.ConversationID, &msg.ID, &origin, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		msg.Origin = stream.Origin(origin)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		hit.Message = msg
		hits = append(hits, &hit)
	}
	return hits, rows.Err()
}

// DeleteConversation removes a conversation and its messages from the mirror.
// Deleting an unknown conversation is a no-op: the gateway may hold
// conversations the mirror never saw.
func (m *Mirror) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*stream.Message, error) {
	var msgs []*stream.Message
	for rows.Next() {
		msg := &stream.Message{Terminal: true}
		var origin, createdAt string
		if err := rows.Scan(&msg.ID, &origin, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Origin = stream.Origin(origin)
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
