// Package search provides semantic retrieval over memory entries with
// chromem-go, a pure Go embedded vector database. Each chat gets its
// own collection for namespace isolation.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/recallhq/recall-go-sdk/core"
)

// Index holds per-chat vector collections.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (x *Index) getOrCreateCollection(chatID string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[chatID]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := x.collections[chatID]; exists {
		return col, nil
	}

	col, err := x.db.CreateCollection(
		fmt.Sprintf("chat_%s", chatID),
		nil, // no embedding func, we always provide vectors
		nil, // default cosine distance
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[chatID] = col
	return col, nil
}

// Add inserts an entry's vector into its chat collection. Entries
// without an embedding are skipped; they remain retrievable through the
// durable store.
func (x *Index) Add(ctx context.Context, entry core.MemoryEntry) error {
	if len(entry.Embedding) == 0 {
		return nil
	}
	col, err := x.getOrCreateCollection(entry.ChatID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: entry.Embedding,
		Metadata:  map[string]string{"chat_id": entry.ChatID},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to limit entry IDs for the query vector, most
// similar first. An empty or unknown collection yields no results.
func (x *Index) Query(ctx context.Context, chatID string, embedding []float32, limit int) ([]string, error) {
	x.mu.RLock()
	col, exists := x.collections[chatID]
	x.mu.RUnlock()
	if !exists || limit <= 0 {
		return nil, nil
	}

	// chromem requires nResults <= collection size; back off until it
	// fits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// DropChat forgets a chat's collection.
func (x *Index) DropChat(chatID string) {
	x.mu.Lock()
	delete(x.collections, chatID)
	x.mu.Unlock()
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
