package memory

import (
	"strings"
	"unicode"
)

// FallbackTitleDefault is used when no alphanumeric tokens survive
// fallback derivation.
const FallbackTitleDefault = "Conversation"

const (
	maxTitleLen            = 60
	fallbackTitleTokens    = 6
	titlePromptTurnsWindow = 4
)

// titleInstruction asks the model for a short Title-Case chat name.
const titleInstruction = `Name this conversation. Reply with only a 3-6 word Title Case name, no quotes, no trailing punctuation.`

// SanitizeTitle normalizes a model-produced title: surrounding quotes
// and whitespace stripped, trailing period removed, length capped.
func SanitizeTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if len(s) > maxTitleLen {
		s = strings.TrimSpace(s[:maxTitleLen])
	}
	return s
}

// FallbackTitle derives a deterministic title from the user's first
// message: the first six alphanumeric tokens, Title-Cased, joined with
// spaces. Returns FallbackTitleDefault if no tokens survive.
func FallbackTitle(firstUserMessage string) string {
	var tokens []string
	for _, field := range strings.Fields(firstUserMessage) {
		token := stripNonAlphanumeric(field)
		if token == "" {
			continue
		}
		tokens = append(tokens, titleCaseToken(token))
		if len(tokens) == fallbackTitleTokens {
			break
		}
	}
	if len(tokens) == 0 {
		return FallbackTitleDefault
	}
	return strings.Join(tokens, " ")
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCaseToken(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
