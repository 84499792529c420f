// Package store defines the local store contract: client-resident
// table storage with point reads, atomic single-record writes, and
// reactive live queries.
//
// The store is shared read-only by all UI subscribers; the sync manager
// and memory engine are the sole mutators. Implementations must commit
// a write before notifying subscribers (commit-then-notify), so a live
// query can never observe a snapshot older than an acknowledged write.
package store

// Table names used by the sync manager and memory engine. The store
// itself is schema-less; tables are created on first write.
const (
	TableChats     = "chats"
	TableMessages  = "messages"
	TableMemories  = "memories"
	TableSummaries = "summaries"
	TableEvents    = "events"
)

// Predicate filters records in a list or live query. A nil predicate
// matches every record.
type Predicate func(v any) bool

// Subscription is a live query handle. Snapshots re-emits the full
// matching result set every time a write to the table commits, starting
// with an immediate emission of current state. Consecutive snapshots
// may be coalesced, but the latest committed state is always delivered.
type Subscription interface {
	// Snapshots returns the reactive sequence of result-set snapshots.
	// The channel is closed when the subscription is closed.
	Snapshots() <-chan []any

	// Close ends the subscription and releases its resources.
	// Closing twice is a no-op.
	Close()
}

// Store is client-resident persistent storage for chats, messages,
// memory entries, and summaries.
type Store interface {
	// Read returns the record stored under key, or ok=false if absent.
	Read(table, key string) (v any, ok bool, err error)

	// Write stores a record atomically. It fails with core.ErrStorageFull
	// or core.ErrCorrupt if the persistence medium rejects the write.
	Write(table, key string, v any) error

	// Delete removes a record. Deleting an absent key is a no-op.
	Delete(table, key string) error

	// List returns all matching records in insertion order.
	List(table string, match Predicate) ([]any, error)

	// Subscribe opens a live query over the table. The subscription is
	// restartable: closing it and subscribing again yields a fresh
	// sequence starting from current state.
	Subscribe(table string, match Predicate) Subscription

	// Close releases resources. Open subscriptions are closed.
	Close() error
}
