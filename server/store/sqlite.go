// Package store is the durable server-side persistence tier: chats,
// messages, memory entries, summaries, and audit events in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/remote"
)

// Store provides database operations for the remote persistence tier.
type Store struct {
	db *sql.DB
}

// New opens (and if needed initializes) the database at path. Use
// ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			metadata TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_chat ON memories(chat_id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			chat_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			keywords TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			details TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertChat inserts or replaces a chat row.
func (s *Store) UpsertChat(ctx context.Context, chat core.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		chat.ID, chat.Title, chat.CreatedAt.Format(time.RFC3339Nano), chat.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// GetChat returns a chat row, ok=false if absent.
func (s *Store) GetChat(ctx context.Context, chatID string) (core.Chat, bool, error) {
	var chat core.Chat
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chats WHERE id = ?`, chatID).
		Scan(&chat.ID, &chat.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.Chat{}, false, nil
	}
	if err != nil {
		return core.Chat{}, false, fmt.Errorf("get chat: %w", err)
	}
	chat.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	chat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return chat, true, nil
}

// DeleteChat removes the chat and everything keyed by it.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete chat: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE chat_id = ?`,
		`DELETE FROM memories WHERE chat_id = ?`,
		`DELETE FROM summaries WHERE chat_id = ?`,
		`DELETE FROM chats WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
	}
	return tx.Commit()
}

// InsertMessage appends one message row.
func (s *Store) InsertMessage(ctx context.Context, msg core.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, msg.Seq, msg.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Messages returns a chat's messages ordered by creation time, then
// insertion order.
func (s *Store) Messages(ctx context.Context, chatID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, seq, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at, seq`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.Message
	for rows.Next() {
		var m core.Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = core.Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertMemory appends one memory entry row.
func (s *Store) InsertMemory(ctx context.Context, entry core.MemoryEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, chat_id, content, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ChatID, entry.Content, encodeEmbedding(entry.Embedding),
		string(metadata), entry.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Memories returns a chat's entries in insertion order.
func (s *Store) Memories(ctx context.Context, chatID string) ([]core.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, content, embedding, metadata, created_at FROM memories
		 WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var entries []core.MemoryEntry
	for rows.Next() {
		var e core.MemoryEntry
		var embedding []byte
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Content, &embedding, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		e.Embedding = decodeEmbedding(embedding)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertSummary replaces the single summary row for a chat. Keywords
// are stored comma-joined and split back on read.
func (s *Store) UpsertSummary(ctx context.Context, summary core.SmartSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (chat_id, summary, keywords, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
			summary = excluded.summary,
			keywords = excluded.keywords,
			updated_at = excluded.updated_at`,
		summary.ChatID, summary.Summary, remote.JoinKeywords(summary.Keywords),
		summary.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// GetSummary returns the live summary for a chat, ok=false if none.
func (s *Store) GetSummary(ctx context.Context, chatID string) (core.SmartSummary, bool, error) {
	var summary core.SmartSummary
	var keywords, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, summary, keywords, updated_at FROM summaries WHERE chat_id = ?`, chatID).
		Scan(&summary.ChatID, &summary.Summary, &keywords, &updatedAt)
	if err == sql.ErrNoRows {
		return core.SmartSummary{}, false, nil
	}
	if err != nil {
		return core.SmartSummary{}, false, fmt.Errorf("get summary: %w", err)
	}
	summary.Keywords = remote.SplitKeywords(keywords)
	summary.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return summary, true, nil
}

// SummaryCount returns the number of summary rows for a chat. Used to
// assert upsert semantics.
func (s *Store) SummaryCount(ctx context.Context, chatID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM summaries WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count summaries: %w", err)
	}
	return n, nil
}

// InsertEvent appends one audit event row.
func (s *Store) InsertEvent(ctx context.Context, ev core.MemoryEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, chat_id, kind, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.ChatID, string(ev.Kind), ev.Details, ev.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns a chat's audit trail in insertion order.
func (s *Store) Events(ctx context.Context, chatID string) ([]core.MemoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, kind, details, created_at FROM events
		 WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []core.MemoryEvent
	for rows.Next() {
		var ev core.MemoryEvent
		var kind, createdAt string
		if err := rows.Scan(&ev.ID, &ev.ChatID, &kind, &ev.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = core.EventKind(kind)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32 bits.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeEmbedding(raw []byte) []float32 {
	if len(raw) < 4 {
		return nil
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
