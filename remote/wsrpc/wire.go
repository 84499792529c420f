// Package wsrpc carries remote procedure calls over a websocket with
// JSON frames. The Client here implements remote.Client; the matching
// server handler lives in package server/wsrpc.
package wsrpc

import (
	"encoding/json"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
	"github.com/recallhq/recall-go-sdk/remote"
)

// Method names understood by the server handler.
const (
	MethodChatCreate    = "chat.create"
	MethodChatUpdate    = "chat.update"
	MethodChatDelete    = "chat.delete"
	MethodMessageCreate = "message.create"
	MethodMemoryAdd     = "memory.add"
	MethodMemoryList    = "memory.list"
	MethodMemorySearch  = "memory.search"
	MethodSummarize     = "summary.compute"
	MethodSummaryUpsert = "summary.upsert"
	MethodSummaryGet    = "summary.get"
)

// Request is one call frame. IDs correlate responses on a multiplexed
// connection.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one reply frame. Either Error or Result is set.
type Response struct {
	ID     uint64          `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ChatParams carries chat.create and chat.update.
type ChatParams struct {
	Chat core.Chat `json:"chat"`
}

// ChatDeleteParams carries chat.delete.
type ChatDeleteParams struct {
	ChatID string `json:"chat_id"`
}

// MessageParams carries message.create.
type MessageParams struct {
	Message core.Message `json:"message"`
}

// MemoryAddParams carries memory.add.
type MemoryAddParams struct {
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MemoryListParams carries memory.list.
type MemoryListParams struct {
	ChatID string `json:"chat_id"`
}

// MemorySearchParams carries memory.search.
type MemorySearchParams struct {
	ChatID string `json:"chat_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// MemoriesResult carries memory.list and memory.search replies.
type MemoriesResult struct {
	Entries []core.MemoryEntry `json:"entries"`
}

// SummarizeParams carries summary.compute.
type SummarizeParams struct {
	ChatID  string               `json:"chat_id"`
	History []generation.Message `json:"history"`
}

// SummaryUpsertParams carries summary.upsert.
type SummaryUpsertParams struct {
	Summary remote.SummaryWire `json:"summary"`
}

// SummaryGetParams carries summary.get.
type SummaryGetParams struct {
	ChatID string `json:"chat_id"`
}

// SummaryResult carries summary.compute and summary.get replies.
type SummaryResult struct {
	Summary remote.SummaryWire `json:"summary"`
	Found   bool               `json:"found"`
}
