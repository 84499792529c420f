package memory

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
	"github.com/recallhq/recall-go-sdk/remote"
	"github.com/recallhq/recall-go-sdk/store"
)

// Engine is the client half of the contextual memory engine.
//
// The engine shares the local store with the sync manager but owns the
// memory and summary tables. Summarization state is per chat: a
// monotonically increasing watermark (the highest message count at
// which a summarization has completed) and a pending flag that holds
// at-most-one concurrent summarization per chat. Both live on the
// engine itself so every call site observes the same state.
type Engine struct {
	store    store.Store
	remote   remote.Client      // optional: nil disables remote mirroring
	gen      generation.Service // optional: nil delegates summaries to remote
	embedder Embedder           // optional: nil skips embeddings
	titles   TitleWriter        // optional: nil disables title derivation
	config   *Config

	mu         sync.Mutex
	watermarks map[string]int
	pending    map[string]bool

	inflight sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithRemote mirrors entries and summaries into the remote store.
func WithRemote(c remote.Client) Option {
	return func(e *Engine) { e.remote = c }
}

// WithGeneration sets the generation service used for summaries and
// titles. Without it, summarization is delegated to the remote half.
func WithGeneration(g generation.Service) Option {
	return func(e *Engine) { e.gen = g }
}

// WithEmbedder enables embedding computation for recorded entries when
// Config.EmbedEntries is set.
func WithEmbedder(em Embedder) Option {
	return func(e *Engine) { e.embedder = em }
}

// WithTitleWriter enables title derivation through the given writer.
func WithTitleWriter(w TitleWriter) Option {
	return func(e *Engine) { e.titles = w }
}

// NewEngine creates a memory engine over the given local store.
func NewEngine(st store.Store, config *Config, opts ...Option) *Engine {
	if config == nil {
		config = DefaultConfig
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig.Interval
	}
	e := &Engine{
		store:      st,
		config:     config,
		watermarks: make(map[string]int),
		pending:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordMessage records one memory entry for a durably created message,
// independent of summarization cadence. The entry is written to the
// local store synchronously and forwarded to the remote store in the
// background; a remote failure is logged, never surfaced.
func (e *Engine) RecordMessage(ctx context.Context, msg core.Message) error {
	if !e.config.Enabled {
		return nil
	}

	entry := core.MemoryEntry{
		ID:        core.NewID(),
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		Metadata:  map[string]any{"role": string(msg.Role)},
		CreatedAt: time.Now().UTC(),
	}

	if e.embedder != nil && e.config.EmbedEntries {
		emb, err := e.embedder.Embed(ctx, msg.Content)
		if err != nil {
			// Fails soft: the entry is still recorded without a vector.
			log.Warn("embedding failed, recording entry without vector", "chat", msg.ChatID, "err", err)
		} else {
			entry.Embedding = emb
		}
	}

	if err := e.store.Write(store.TableMemories, entry.ID, entry); err != nil {
		return err
	}

	if e.remote != nil {
		e.inflight.Add(1)
		rctx := context.WithoutCancel(ctx)
		go func() {
			defer e.inflight.Done()
			if err := e.remote.AddMemory(rctx, entry.ChatID, entry.Content, entry.Metadata); err != nil {
				log.Warn("remote AddMemory failed", "chat", entry.ChatID, "err", err)
			}
		}()
	}
	return nil
}

// Memories returns a chat's recorded entries in insertion order.
func (e *Engine) Memories(ctx context.Context, chatID string) ([]core.MemoryEntry, error) {
	recs, err := e.store.List(store.TableMemories, func(v any) bool {
		entry, ok := v.(core.MemoryEntry)
		return ok && entry.ChatID == chatID
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.MemoryEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.(core.MemoryEntry))
	}
	return out, nil
}

// Summary returns the live summary for a chat from the local store.
func (e *Engine) Summary(ctx context.Context, chatID string) (core.SmartSummary, bool, error) {
	v, ok, err := e.store.Read(store.TableSummaries, chatID)
	if err != nil || !ok {
		return core.SmartSummary{}, false, err
	}
	return v.(core.SmartSummary), true, nil
}

// Watermark returns the highest message count at which a summarization
// has completed for the chat.
func (e *Engine) Watermark(chatID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermarks[chatID]
}

// MaybeSummarize applies the trigger policy and, when it fires, starts
// one background summarization for the chat. It reports whether a
// summarization was started.
//
// The transition to Summarizing happens only when the running message
// count is positive, divisible by the cadence interval, and strictly
// above the chat's watermark. While a summarization is pending, a
// repeated trigger for the same chat is a no-op.
func (e *Engine) MaybeSummarize(ctx context.Context, chatID string) bool {
	if !e.config.Enabled {
		return false
	}

	msgs, err := e.chatHistory(chatID)
	if err != nil {
		log.Error("reading history for summarization", "chat", chatID, "err", err)
		return false
	}
	count := len(msgs)

	e.mu.Lock()
	if e.pending[chatID] ||
		count == 0 ||
		count%e.config.Interval != 0 ||
		count <= e.watermarks[chatID] {
		e.mu.Unlock()
		return false
	}
	e.pending[chatID] = true
	e.mu.Unlock()

	// The call is allowed to outlive the triggering UI context: a chat
	// switch abandons interest in the result, not the generation cost.
	rctx := context.WithoutCancel(ctx)

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ok := e.summarize(rctx, chatID, msgs)

		e.mu.Lock()
		e.pending[chatID] = false
		if ok && count > e.watermarks[chatID] {
			e.watermarks[chatID] = count
		}
		e.mu.Unlock()
	}()
	return true
}

// summarize computes and persists the summary for one chat. It reports
// whether the summarization completed (and the watermark may advance).
// A generation failure leaves the prior summary untouched.
func (e *Engine) summarize(ctx context.Context, chatID string, msgs []core.Message) bool {
	history := make([]generation.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, generation.Message{Role: m.Role, Content: m.Content})
	}

	var summary core.SmartSummary
	switch {
	case e.gen != nil:
		text, err := e.gen.Generate(ctx, e.config.Model, BuildSummaryPrompt(history))
		if err != nil {
			log.Warn("summarization generation failed", "chat", chatID, "err", err)
			return false
		}
		s, keywords := ParseSummaryResponse(text)
		summary = core.SmartSummary{
			ChatID:    chatID,
			Summary:   s,
			Keywords:  keywords,
			UpdatedAt: time.Now().UTC(),
		}
		// Local store first for instant UI reflection, then the remote
		// round-trip.
		if err := e.store.Write(store.TableSummaries, chatID, summary); err != nil {
			log.Error("persisting summary locally", "chat", chatID, "err", err)
			return false
		}
		if e.remote != nil {
			if err := e.remote.UpsertSummary(ctx, summary); err != nil {
				log.Warn("remote UpsertSummary failed", "chat", chatID, "err", err)
			}
		}

	case e.remote != nil:
		var err error
		summary, err = e.remote.SummarizeHistory(ctx, chatID, history)
		if err != nil {
			log.Warn("remote SummarizeHistory failed", "chat", chatID, "err", err)
			return false
		}
		if err := e.store.Write(store.TableSummaries, chatID, summary); err != nil {
			log.Error("persisting summary locally", "chat", chatID, "err", err)
			return false
		}

	default:
		return false
	}

	log.Debug("summary updated", "chat", chatID, "keywords", len(summary.Keywords))
	return true
}

// RefreshTitle derives a title for a chat whose title is still the
// default sentinel. It asks the generation service for a short name
// and falls back to a deterministic derivation from the user's first
// message. The title is written only if it differs from the current
// one. Returns the effective title.
func (e *Engine) RefreshTitle(ctx context.Context, chatID string) (string, error) {
	if !e.config.Enabled || e.titles == nil {
		return "", nil
	}

	v, ok, err := e.store.Read(store.TableChats, chatID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.ErrUnknownChat
	}
	chat := v.(core.Chat)
	if chat.Title != core.DefaultChatTitle {
		return chat.Title, nil
	}

	msgs, err := e.chatHistory(chatID)
	if err != nil {
		return "", err
	}

	title := e.generateTitle(ctx, msgs)
	if title == "" || title == core.DefaultChatTitle {
		title = FallbackTitle(firstUserContent(msgs))
	}
	if title == chat.Title {
		return title, nil
	}

	if _, err := e.titles.UpdateChat(ctx, chatID, core.ChatPatch{Title: &title}); err != nil {
		return "", err
	}
	log.Debug("chat titled", "chat", chatID, "title", title)
	return title, nil
}

func (e *Engine) generateTitle(ctx context.Context, msgs []core.Message) string {
	if e.gen == nil {
		return ""
	}

	window := msgs
	if len(window) > titlePromptTurnsWindow {
		window = window[len(window)-titlePromptTurnsWindow:]
	}
	prompt := []generation.Message{{Role: core.RoleSystem, Content: titleInstruction}}
	for _, m := range window {
		prompt = append(prompt, generation.Message{Role: m.Role, Content: m.Content})
	}

	model := e.config.TitleModel
	if model == "" {
		model = e.config.Model
	}
	text, err := e.gen.Generate(ctx, model, prompt)
	if err != nil {
		log.Warn("title generation failed, using fallback", "err", err)
		return ""
	}
	return SanitizeTitle(text)
}

// chatHistory returns a chat's messages in creation order.
func (e *Engine) chatHistory(chatID string) ([]core.Message, error) {
	recs, err := e.store.List(store.TableMessages, func(v any) bool {
		m, ok := v.(core.Message)
		return ok && m.ChatID == chatID
	})
	if err != nil {
		return nil, err
	}
	msgs := make([]core.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, r.(core.Message))
	}
	return msgs, nil
}

func firstUserContent(msgs []core.Message) string {
	for _, m := range msgs {
		if m.Role == core.RoleUser {
			return m.Content
		}
	}
	return ""
}

// Wait blocks until all background work (remote mirroring and pending
// summarizations) has finished. Intended for shutdown and tests.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
