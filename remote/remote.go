// Package remote defines the request/response surface of the remote
// persistence tier. The client here is consumed by the sync manager and
// the memory engine; the server half lives in package server.
//
// Remote calls are best-effort from the application's point of view:
// local state stays authoritative and a transport failure surfaces as
// core.ErrRemoteUnavailable, never as a rollback.
package remote

import (
	"context"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
)

// Client is the typed procedure-call surface of the remote store.
//
// Implementations:
//   - server.Service: in-process (single binary deployments, tests)
//   - wsrpc.Client: websocket transport to a remote server
type Client interface {
	// Chat/message CRUD consumed by the sync manager.
	CreateChat(ctx context.Context, chat core.Chat) error
	UpdateChat(ctx context.Context, chat core.Chat) error
	DeleteChat(ctx context.Context, chatID string) error
	CreateMessage(ctx context.Context, msg core.Message) error

	// AddMemory records one memory entry for a chat.
	AddMemory(ctx context.Context, chatID, content string, metadata map[string]any) error

	// SummarizeHistory asks the server half to compute and upsert the
	// summary for a chat from the given linearized history.
	SummarizeHistory(ctx context.Context, chatID string, history []generation.Message) (core.SmartSummary, error)

	// UpsertSummary replaces the single summary row for a chat with a
	// client-computed summary.
	UpsertSummary(ctx context.Context, summary core.SmartSummary) error

	// GetSummary returns the live summary for a chat, ok=false if none.
	GetSummary(ctx context.Context, chatID string) (core.SmartSummary, bool, error)

	// GetMemories returns a chat's memory entries in insertion order.
	GetMemories(ctx context.Context, chatID string) ([]core.MemoryEntry, error)

	// SearchMemories returns entries semantically close to the query.
	SearchMemories(ctx context.Context, chatID, query string, limit int) ([]core.MemoryEntry, error)
}
