package memory

import (
	"fmt"
	"strings"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/generation"
)

// FallbackSummary replaces the summary when the model violates the
// response contract. A soft failure: the chat stays usable.
const FallbackSummary = "Could not generate summary."

// summaryInstruction is the literal two-line contract the model is
// asked to follow. The generation service returns unstructured text;
// this format is what makes the response reliably parseable.
const summaryInstruction = `You distill chat conversations. Reply with exactly two lines:
Summary: <one or two sentences capturing the conversation so far>
Keywords: <up to five comma-separated keywords>`

// LinearizeHistory flattens a chat history into "role: content" lines,
// newline-joined, oldest first.
func LinearizeHistory(msgs []core.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// BuildSummaryPrompt wraps a linearized history in the summarization
// contract. Shared by the client engine and the server half so both
// produce identical requests.
func BuildSummaryPrompt(history []generation.Message) []generation.Message {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return []generation.Message{
		{Role: core.RoleSystem, Content: summaryInstruction},
		{Role: core.RoleUser, Content: b.String()},
	}
}

// ParseSummaryResponse extracts the Summary and Keywords lines from a
// model response by prefix match. A missing Summary line yields
// FallbackSummary; a missing Keywords line yields no keywords.
// Keywords are trimmed individually but not deduplicated; callers must
// tolerate duplicates.
func ParseSummaryResponse(text string) (summary string, keywords []string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Summary:"):
			if summary == "" {
				summary = strings.TrimSpace(strings.TrimPrefix(line, "Summary:"))
			}
		case strings.HasPrefix(line, "Keywords:"):
			if keywords == nil {
				keywords = splitKeywordLine(strings.TrimPrefix(line, "Keywords:"))
			}
		}
	}
	if summary == "" {
		// No Summary line means the contract was violated; discard any
		// keyword line too rather than trust a half-formed response.
		return FallbackSummary, nil
	}
	return summary, keywords
}

func splitKeywordLine(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k)
		if len(out) == core.MaxKeywords {
			break
		}
	}
	return out
}
