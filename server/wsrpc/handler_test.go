package wsrpc_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recallhq/recall-go-sdk/core"
	clientrpc "github.com/recallhq/recall-go-sdk/remote/wsrpc"
	"github.com/recallhq/recall-go-sdk/server"
	"github.com/recallhq/recall-go-sdk/server/store"
	serverrpc "github.com/recallhq/recall-go-sdk/server/wsrpc"
)

func newPair(t *testing.T) (*clientrpc.Client, *server.Service) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "recall.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := server.New(st)
	ts := httptest.NewServer(serverrpc.NewHandler(svc))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := clientrpc.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, svc
}

func TestRoundTrip_ChatAndMessages(t *testing.T) {
	ctx := context.Background()
	client, svc := newPair(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	chat := core.Chat{ID: core.NewChatID(), Title: core.DefaultChatTitle, CreatedAt: now, UpdatedAt: now}
	if err := client.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if err := client.CreateMessage(ctx, core.Message{
		ID: core.NewID(), ChatID: chat.ID, Role: core.RoleUser, Content: "hello", Seq: 1, CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	chat.Title = "Renamed"
	if err := client.UpdateChat(ctx, chat); err != nil {
		t.Fatalf("UpdateChat: %v", err)
	}

	// Verify through the service directly: the durable store saw it all.
	entries, err := svc.GetMemories(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetMemories: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestRoundTrip_MemoriesAndSummary(t *testing.T) {
	ctx := context.Background()
	client, _ := newPair(t)

	chatID := core.NewChatID()
	if err := client.AddMemory(ctx, chatID, "likes trains", map[string]any{"role": "user"}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	entries, err := client.GetMemories(ctx, chatID)
	if err != nil {
		t.Fatalf("GetMemories: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "likes trains" {
		t.Fatalf("entries = %v", entries)
	}
	if entries[0].Metadata["role"] != "user" {
		t.Errorf("metadata = %v", entries[0].Metadata)
	}

	summary := core.SmartSummary{
		ChatID:    chatID,
		Summary:   "Talking about trains.",
		Keywords:  []string{"trains", "travel"},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := client.UpsertSummary(ctx, summary); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}

	got, ok, err := client.GetSummary(ctx, chatID)
	if err != nil || !ok {
		t.Fatalf("GetSummary: ok=%v err=%v", ok, err)
	}
	if got.Summary != summary.Summary {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "trains" {
		t.Errorf("keywords = %v", got.Keywords)
	}
}

func TestRoundTrip_SummaryMissing(t *testing.T) {
	ctx := context.Background()
	client, _ := newPair(t)

	_, ok, err := client.GetSummary(ctx, core.NewChatID())
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing summary")
	}
}

func TestServerError_SurfacesToCaller(t *testing.T) {
	ctx := context.Background()
	client, _ := newPair(t)

	// summary.compute without a generation service is a server-side
	// error, delivered over the wire as a response error.
	_, err := client.SummarizeHistory(ctx, core.NewChatID(), nil)
	if err == nil {
		t.Fatal("expected a server-side error")
	}
	if !strings.Contains(err.Error(), "generation") {
		t.Errorf("err = %v", err)
	}
}

func TestClosedConnection_ReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	client, _ := newPair(t)

	client.Close()
	time.Sleep(50 * time.Millisecond) // let the read loop observe the close

	err := client.CreateChat(ctx, core.Chat{ID: core.NewChatID()})
	if err == nil {
		t.Fatal("expected an error on a closed connection")
	}
}
