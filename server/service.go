// Package server is the remote persistence tier: durable SQLite
// storage, semantic search, and server-side summarization. Service
// implements remote.Client directly so single-binary deployments and
// tests can run without a transport; package wsrpc exposes the same
// surface over a websocket.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
	"github.com/recallhq/recall-go-sdk/memory"
	"github.com/recallhq/recall-go-sdk/server/search"
	"github.com/recallhq/recall-go-sdk/server/store"
)

// Service is the in-process server half.
type Service struct {
	store    *store.Store
	index    *search.Index
	gen      generation.Service // optional: nil disables SummarizeHistory
	embedder memory.Embedder    // optional: nil disables semantic search
	model    string
}

// Option configures the service.
type Option func(*Service)

// WithGeneration enables server-side summarization with the given
// model.
func WithGeneration(gen generation.Service, model string) Option {
	return func(s *Service) {
		s.gen = gen
		s.model = model
	}
}

// WithEmbedder enables semantic search over memory entries.
func WithEmbedder(e memory.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// New creates a service over the durable store.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		index: search.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChat persists a new chat row.
func (s *Service) CreateChat(ctx context.Context, chat core.Chat) error {
	return s.store.UpsertChat(ctx, chat)
}

// UpdateChat replaces the chat row with the merged record.
func (s *Service) UpdateChat(ctx context.Context, chat core.Chat) error {
	return s.store.UpsertChat(ctx, chat)
}

// DeleteChat removes the chat and everything keyed by it.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	s.index.DropChat(chatID)
	return nil
}

// CreateMessage persists one message row.
func (s *Service) CreateMessage(ctx context.Context, msg core.Message) error {
	return s.store.InsertMessage(ctx, msg)
}

// AddMemory records one memory entry, indexes it for search when an
// embedder is configured, and appends an audit event.
func (s *Service) AddMemory(ctx context.Context, chatID, content string, metadata map[string]any) error {
	if err := core.ValidateMetadata(metadata); err != nil {
		return err
	}

	entry := core.MemoryEntry{
		ID:        core.NewID(),
		ChatID:    chatID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			// Entry persistence wins over search freshness.
			log.Warn("embed memory failed", "chat", chatID, "err", err)
		} else {
			entry.Embedding = vec
		}
	}

	if err := s.store.InsertMemory(ctx, entry); err != nil {
		return err
	}
	if err := s.index.Add(ctx, entry); err != nil {
		log.Warn("index memory failed", "chat", chatID, "entry", entry.ID, "err", err)
	}
	s.recordEvent(ctx, chatID, core.EventEntryAdded, entry.ID)
	return nil
}

// SummarizeHistory computes the summary server-side, upserts it, and
// returns the stored record. Requires a generation service.
func (s *Service) SummarizeHistory(ctx context.Context, chatID string, history []generation.Message) (core.SmartSummary, error) {
	if s.gen == nil {
		return core.SmartSummary{}, &core.GenerationError{Reason: "server has no generation service"}
	}

	raw, err := s.gen.Generate(ctx, s.model, memory.BuildSummaryPrompt(history))
	if err != nil {
		return core.SmartSummary{}, fmt.Errorf("summarize chat %s: %w", chatID, err)
	}
	text, keywords := memory.ParseSummaryResponse(raw)

	summary := core.SmartSummary{
		ChatID:    chatID,
		Summary:   text,
		Keywords:  keywords,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertSummary(ctx, summary); err != nil {
		return core.SmartSummary{}, err
	}
	s.recordEvent(ctx, chatID, core.EventSummary, summary.Summary)
	return summary, nil
}

// UpsertSummary replaces the chat's summary row with a client-computed
// summary.
func (s *Service) UpsertSummary(ctx context.Context, summary core.SmartSummary) error {
	if err := s.store.UpsertSummary(ctx, summary); err != nil {
		return err
	}
	s.recordEvent(ctx, summary.ChatID, core.EventSummary, summary.Summary)
	return nil
}

// GetSummary returns the live summary for a chat.
func (s *Service) GetSummary(ctx context.Context, chatID string) (core.SmartSummary, bool, error) {
	return s.store.GetSummary(ctx, chatID)
}

// GetMemories returns a chat's entries in insertion order.
func (s *Service) GetMemories(ctx context.Context, chatID string) ([]core.MemoryEntry, error) {
	return s.store.Memories(ctx, chatID)
}

// SearchMemories embeds the query and returns the closest entries.
// Without an embedder it degrades to the full insertion-order list,
// truncated to limit.
func (s *Service) SearchMemories(ctx context.Context, chatID, query string, limit int) ([]core.MemoryEntry, error) {
	entries, err := s.store.Memories(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, chatID, core.EventSearch, query)

	if s.embedder == nil {
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		return entries, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	ids, err := s.index.Query(ctx, chatID, vec, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.MemoryEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	out := make([]core.MemoryEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns a chat's audit trail. Not part of the remote client
// surface; exposed for operators and tests.
func (s *Service) Events(ctx context.Context, chatID string) ([]core.MemoryEvent, error) {
	return s.store.Events(ctx, chatID)
}

// recordEvent appends an audit row. Audit failures never fail the
// operation that produced them.
func (s *Service) recordEvent(ctx context.Context, chatID string, kind core.EventKind, details string) {
	ev := core.MemoryEvent{
		ID:        core.NewID(),
		ChatID:    chatID,
		Kind:      kind,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		log.Warn("record event failed", "chat", chatID, "kind", kind, "err", err)
	}
}
