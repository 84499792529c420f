package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// DefaultChatTitle is the sentinel title given to a chat at creation.
// It stays in place until title generation or the user renames the chat.
const DefaultChatTitle = "New Conversation"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Chat is a conversation container. Chats are owned by the sync manager
// and mutated only through its update operation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatPatch carries the mutable chat fields for a merge update.
// Nil fields are left untouched.
type ChatPatch struct {
	Title *string `json:"title,omitempty"`
}

// Message is a single turn in a chat. Messages are append-only: they are
// created once and never edited. Ordering is by CreatedAt, with Seq
// breaking ties in insertion order.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryEntry is a discrete recollection extracted from a conversation.
// One entry is recorded per durably created message. The embedding is
// optional and may be empty when embedding is skipped for cost reasons.
type MemoryEntry struct {
	ID        string         `json:"id"`
	ChatID    string         `json:"chat_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SmartSummary is the single live summary for a chat. Each summarization
// replaces the previous row; no history is kept.
type SmartSummary struct {
	ChatID    string    `json:"chat_id"`
	Summary   string    `json:"summary"`
	Keywords  []string  `json:"keywords"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxKeywords caps the keyword set carried by a SmartSummary.
const MaxKeywords = 5

// EventKind classifies memory audit events.
type EventKind string

const (
	EventSummary    EventKind = "summary"
	EventEntryAdded EventKind = "entry_added"
	EventSearch     EventKind = "search"
)

// MemoryEvent is an append-only audit record. Events are purely
// observational and never read back by the engine itself.
type MemoryEvent struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Kind      EventKind `json:"kind"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChatID allocates an opaque chat identifier.
func NewChatID() string {
	return uuid.New().String()
}

// NewID allocates a lexically time-ordered identifier for messages,
// memory entries, and events. ULIDs sort by creation time with a
// monotonic tiebreak, which preserves insertion order within a chat.
func NewID() string {
	return ulid.Make().String()
}

// ValidateMetadata checks that a metadata bag only carries the closed
// set of scalar value kinds accepted at the boundary. Nested structures
// are rejected rather than silently serialized.
func ValidateMetadata(md map[string]any) error {
	for k, v := range md {
		switch v.(type) {
		case string, bool, int, int64, float64:
		default:
			return fmt.Errorf("metadata key %q: unsupported value type %T", k, v)
		}
	}
	return nil
}
