package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
	"github.com/recallhq/recall-go-sdk/memory"
	"github.com/recallhq/recall-go-sdk/store"
	"github.com/recallhq/recall-go-sdk/store/localdb"
)

// stubGen is a scriptable generation service. With a gate set, Generate
// blocks until the gate closes.
type stubGen struct {
	mu      sync.Mutex
	calls   int
	respond func(msgs []generation.Message) (string, error)
	gate    chan struct{}
}

func (g *stubGen) Generate(ctx context.Context, model string, msgs []generation.Message) (string, error) {
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.respond != nil {
		return g.respond(msgs)
	}
	return "Summary: stub summary\nKeywords: one, two", nil
}

func (g *stubGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// stubRemote implements remote.Client with overridable behaviors.
type stubRemote struct {
	mu          sync.Mutex
	memoryAdds  int
	upserts     int
	summarize   func(chatID string, history []generation.Message) (core.SmartSummary, error)
	upsertErr   error
	summarizeds int
}

func (r *stubRemote) CreateChat(ctx context.Context, chat core.Chat) error      { return nil }
func (r *stubRemote) UpdateChat(ctx context.Context, chat core.Chat) error      { return nil }
func (r *stubRemote) DeleteChat(ctx context.Context, chatID string) error       { return nil }
func (r *stubRemote) CreateMessage(ctx context.Context, msg core.Message) error { return nil }

func (r *stubRemote) AddMemory(ctx context.Context, chatID, content string, metadata map[string]any) error {
	r.mu.Lock()
	r.memoryAdds++
	r.mu.Unlock()
	return nil
}

func (r *stubRemote) SummarizeHistory(ctx context.Context, chatID string, history []generation.Message) (core.SmartSummary, error) {
	r.mu.Lock()
	r.summarizeds++
	r.mu.Unlock()
	if r.summarize != nil {
		return r.summarize(chatID, history)
	}
	return core.SmartSummary{}, errors.New("not scripted")
}

func (r *stubRemote) UpsertSummary(ctx context.Context, summary core.SmartSummary) error {
	r.mu.Lock()
	r.upserts++
	r.mu.Unlock()
	return r.upsertErr
}

func (r *stubRemote) GetSummary(ctx context.Context, chatID string) (core.SmartSummary, bool, error) {
	return core.SmartSummary{}, false, nil
}

func (r *stubRemote) GetMemories(ctx context.Context, chatID string) ([]core.MemoryEntry, error) {
	return nil, nil
}

func (r *stubRemote) SearchMemories(ctx context.Context, chatID, query string, limit int) ([]core.MemoryEntry, error) {
	return nil, nil
}

// stubTitleWriter records the applied patch.
type stubTitleWriter struct {
	mu     sync.Mutex
	titles []string
}

func (w *stubTitleWriter) UpdateChat(ctx context.Context, chatID string, patch core.ChatPatch) (core.Chat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if patch.Title != nil {
		w.titles = append(w.titles, *patch.Title)
	}
	return core.Chat{ID: chatID, Title: *patch.Title}, nil
}

func newTestStore(t *testing.T) *localdb.DB {
	t.Helper()
	db, err := localdb.New(localdb.Config{})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedChat(t *testing.T, db *localdb.DB, chatID, title string) {
	t.Helper()
	now := time.Now().UTC()
	chat := core.Chat{ID: chatID, Title: title, CreatedAt: now, UpdatedAt: now}
	if err := db.Write(store.TableChats, chatID, chat); err != nil {
		t.Fatalf("seed chat: %v", err)
	}
}

func addMessages(t *testing.T, db *localdb.DB, chatID string, contents ...string) {
	t.Helper()
	for i, content := range contents {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		msg := core.Message{
			ID:        core.NewID(),
			ChatID:    chatID,
			Role:      role,
			Content:   content,
			Seq:       int64(i + 1),
			CreatedAt: time.Now().UTC(),
		}
		if err := db.Write(store.TableMessages, msg.ID, msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
}

func TestEngine_SummarizesOnCadence(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gen := &stubGen{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "plan a trip to Japan", "Sure, when are you going?")

	if !engine.MaybeSummarize(ctx, chatID) {
		t.Fatal("expected summarization to start at message count 2")
	}
	engine.Wait()

	summary, ok, err := engine.Summary(ctx, chatID)
	if err != nil || !ok {
		t.Fatalf("Summary: ok=%v err=%v", ok, err)
	}
	if summary.Summary != "stub summary" {
		t.Errorf("summary = %q", summary.Summary)
	}
	if len(summary.Keywords) != 2 {
		t.Errorf("keywords = %v", summary.Keywords)
	}
	if got := engine.Watermark(chatID); got != 2 {
		t.Errorf("watermark = %d, want 2", got)
	}

	// Same count again: watermark suppresses a re-run.
	if engine.MaybeSummarize(ctx, chatID) {
		t.Error("expected no re-run at unchanged message count")
	}
	if gen.callCount() != 1 {
		t.Errorf("generation calls = %d, want 1", gen.callCount())
	}
}

func TestEngine_NoTriggerOffCadence(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(&stubGen{}))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)

	if engine.MaybeSummarize(ctx, chatID) {
		t.Error("expected no trigger on empty chat")
	}
	addMessages(t, db, chatID, "only one message")
	if engine.MaybeSummarize(ctx, chatID) {
		t.Error("expected no trigger at count 1 with interval 2")
	}
}

func TestEngine_MalformedResponseFallsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gen := &stubGen{respond: func([]generation.Message) (string, error) {
		return "I'd rather not follow instructions today.", nil
	}}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "hello", "hi there")

	if !engine.MaybeSummarize(ctx, chatID) {
		t.Fatal("expected summarization to start")
	}
	engine.Wait()

	summary, ok, _ := engine.Summary(ctx, chatID)
	if !ok {
		t.Fatal("expected a stored summary")
	}
	if summary.Summary != memory.FallbackSummary {
		t.Errorf("summary = %q, want fallback", summary.Summary)
	}
	if len(summary.Keywords) != 0 {
		t.Errorf("keywords = %v, want none", summary.Keywords)
	}
	// A contract violation is a soft failure: the run completed.
	if got := engine.Watermark(chatID); got != 2 {
		t.Errorf("watermark = %d, want 2", got)
	}
}

func TestEngine_GenerationErrorKeepsPriorSummary(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	fail := false
	gen := &stubGen{respond: func([]generation.Message) (string, error) {
		if fail {
			return "", errors.New("rate limited")
		}
		return "Summary: first pass\nKeywords: ok", nil
	}}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "a", "b")
	engine.MaybeSummarize(ctx, chatID)
	engine.Wait()

	fail = true
	addMessages(t, db, chatID, "c", "d")
	if !engine.MaybeSummarize(ctx, chatID) {
		t.Fatal("expected a second summarization to start")
	}
	engine.Wait()

	summary, ok, _ := engine.Summary(ctx, chatID)
	if !ok || summary.Summary != "first pass" {
		t.Errorf("summary = %q, want prior summary preserved", summary.Summary)
	}
	// Failed runs never advance the watermark, so the next on-cadence
	// count retries.
	if got := engine.Watermark(chatID); got != 2 {
		t.Errorf("watermark = %d, want 2", got)
	}
}

func TestEngine_ConcurrentTriggerRunsOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gate := make(chan struct{})
	gen := &stubGen{gate: gate}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "x", "y")

	if !engine.MaybeSummarize(ctx, chatID) {
		t.Fatal("first trigger should start")
	}
	// Second trigger while the first is still generating.
	if engine.MaybeSummarize(ctx, chatID) {
		t.Error("second trigger should be suppressed while pending")
	}
	close(gate)
	engine.Wait()

	if gen.callCount() != 1 {
		t.Errorf("generation calls = %d, want 1", gen.callCount())
	}
}

func TestEngine_RemoteDelegation(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	rc := &stubRemote{summarize: func(chatID string, history []generation.Message) (core.SmartSummary, error) {
		return core.SmartSummary{
			ChatID:    chatID,
			Summary:   "server computed",
			Keywords:  []string{"remote"},
			UpdatedAt: time.Now().UTC(),
		}, nil
	}}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithRemote(rc))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "a", "b")
	if !engine.MaybeSummarize(ctx, chatID) {
		t.Fatal("expected summarization to start")
	}
	engine.Wait()

	summary, ok, _ := engine.Summary(ctx, chatID)
	if !ok || summary.Summary != "server computed" {
		t.Errorf("summary = %q, want server computed", summary.Summary)
	}
}

func TestEngine_RecordMessage(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	rc := &stubRemote{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithRemote(rc))

	chatID := core.NewChatID()
	for i, content := range []string{"one", "two", "three"} {
		msg := core.Message{ID: core.NewID(), ChatID: chatID, Role: core.RoleUser, Content: content, Seq: int64(i + 1)}
		if err := engine.RecordMessage(ctx, msg); err != nil {
			t.Fatalf("RecordMessage: %v", err)
		}
	}
	engine.Wait()

	entries, err := engine.Memories(ctx, chatID)
	if err != nil {
		t.Fatalf("Memories: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Metadata["role"] != "user" {
			t.Errorf("entry %s metadata role = %v", e.ID, e.Metadata["role"])
		}
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.memoryAdds != 3 {
		t.Errorf("remote AddMemory calls = %d, want 3", rc.memoryAdds)
	}
}

func TestEngine_RefreshTitle(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gen := &stubGen{respond: func([]generation.Message) (string, error) {
		return `"Japan Trip Planning."`, nil
	}}
	writer := &stubTitleWriter{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen), memory.WithTitleWriter(writer))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "can you help me plan a trip to Japan??", "Of course!")

	title, err := engine.RefreshTitle(ctx, chatID)
	if err != nil {
		t.Fatalf("RefreshTitle: %v", err)
	}
	if title != "Japan Trip Planning" {
		t.Errorf("title = %q", title)
	}
	if len(writer.titles) != 1 || writer.titles[0] != "Japan Trip Planning" {
		t.Errorf("applied titles = %v", writer.titles)
	}
}

func TestEngine_RefreshTitleFallback(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gen := &stubGen{respond: func([]generation.Message) (string, error) {
		return "", errors.New("unavailable")
	}}
	writer := &stubTitleWriter{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(gen), memory.WithTitleWriter(writer))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "can you help me plan a trip to Japan??")

	title, err := engine.RefreshTitle(ctx, chatID)
	if err != nil {
		t.Fatalf("RefreshTitle: %v", err)
	}
	if title != "Can You Help Me Plan A" {
		t.Errorf("title = %q", title)
	}
}

func TestEngine_RefreshTitleSkipsNamedChat(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	writer := &stubTitleWriter{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: true, Interval: 2},
		memory.WithGeneration(&stubGen{}), memory.WithTitleWriter(writer))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, "My Renamed Chat")

	title, err := engine.RefreshTitle(ctx, chatID)
	if err != nil {
		t.Fatalf("RefreshTitle: %v", err)
	}
	if title != "My Renamed Chat" {
		t.Errorf("title = %q, want existing title untouched", title)
	}
	if len(writer.titles) != 0 {
		t.Errorf("expected no title writes, got %v", writer.titles)
	}
}

func TestEngine_Disabled(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	gen := &stubGen{}
	engine := memory.NewEngine(db, &memory.Config{Enabled: false, Interval: 2},
		memory.WithGeneration(gen))

	chatID := core.NewChatID()
	seedChat(t, db, chatID, core.DefaultChatTitle)
	addMessages(t, db, chatID, "a", "b")

	if engine.MaybeSummarize(ctx, chatID) {
		t.Error("disabled engine should never trigger")
	}
	msg := core.Message{ID: core.NewID(), ChatID: chatID, Role: core.RoleUser, Content: "a"}
	if err := engine.RecordMessage(ctx, msg); err != nil {
		t.Fatalf("RecordMessage: %v", err)
	}
	entries, _ := engine.Memories(ctx, chatID)
	if len(entries) != 0 {
		t.Errorf("disabled engine recorded %d entries", len(entries))
	}
}
