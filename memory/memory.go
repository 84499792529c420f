package memory

import (
	"context"

	"github.com/recallhq/recall-go-sdk/core"
)

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder (local,
// build-tagged), or any API-backed embedder.
//
// The embedder is an implementation detail of the engine; absence of
// an embedding never blocks entry creation.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// TitleWriter applies a derived title through the single mutation path
// for chats. syncer.Manager satisfies this interface.
type TitleWriter interface {
	UpdateChat(ctx context.Context, chatID string, patch core.ChatPatch) (core.Chat, error)
}

// Config holds engine configuration.
type Config struct {
	// Enabled toggles the memory system on/off.
	Enabled bool

	// Model is the generation model used for summaries.
	Model string

	// TitleModel is the generation model used for title derivation.
	// Empty falls back to Model.
	TitleModel string

	// Interval is the message-count cadence between summarizations.
	// The trigger fires when the count is divisible by Interval and
	// above the chat's watermark. Default: 2 (every assistant turn,
	// assuming strict user/assistant alternation).
	Interval int

	// EmbedEntries computes an embedding for each recorded entry.
	// Default: false (skipped for cost control).
	EmbedEntries bool
}

// DefaultConfig returns the defaults used when no config is given.
var DefaultConfig = &Config{
	Enabled:      true,
	Interval:     2,
	EmbedEntries: false,
}
