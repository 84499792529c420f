package remote

import (
	"strings"
	"time"

	"github.com/recallhq/recall-go-sdk/core"
)

// SummaryWire is the persisted/transported form of a SmartSummary.
// Keywords travel as a single comma-joined string; the in-memory
// representation is an ordered slice. The mismatch is intentional and
// resolved at the boundary.
type SummaryWire struct {
	ChatID    string    `json:"chat_id"`
	Summary   string    `json:"summary"`
	Keywords  string    `json:"keywords"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EncodeSummary converts a SmartSummary to its wire form.
func EncodeSummary(s core.SmartSummary) SummaryWire {
	return SummaryWire{
		ChatID:    s.ChatID,
		Summary:   s.Summary,
		Keywords:  JoinKeywords(s.Keywords),
		UpdatedAt: s.UpdatedAt,
	}
}

// DecodeSummary converts a wire summary back to its in-memory form.
func DecodeSummary(w SummaryWire) core.SmartSummary {
	return core.SmartSummary{
		ChatID:    w.ChatID,
		Summary:   w.Summary,
		Keywords:  SplitKeywords(w.Keywords),
		UpdatedAt: w.UpdatedAt,
	}
}

// JoinKeywords flattens an ordered keyword slice to the delimited
// storage string.
func JoinKeywords(keywords []string) string {
	return strings.Join(keywords, ",")
}

// SplitKeywords restores the ordered keyword slice from storage.
// An empty string decodes to no keywords rather than [""].
func SplitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
