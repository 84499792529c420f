package memory_test

import (
	"strings"
	"testing"

	"github.com/recallhq/recall-go-sdk/memory"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"Trip To Japan"`, "Trip To Japan"},
		{"  Weekend Plans.  ", "Weekend Plans"},
		{"'Quoted Name'", "Quoted Name"},
		{strings.Repeat("long ", 20), strings.TrimSpace(strings.Repeat("long ", 20))[:60]},
	}
	for _, c := range cases {
		if got := memory.SanitizeTitle(c.in); got != c.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFallbackTitle(t *testing.T) {
	got := memory.FallbackTitle("can you help me plan a trip to Japan??")
	if got != "Can You Help Me Plan A" {
		t.Errorf("FallbackTitle = %q", got)
	}
}

func TestFallbackTitle_StripsPunctuation(t *testing.T) {
	got := memory.FallbackTitle("hello, world!")
	if got != "Hello World" {
		t.Errorf("FallbackTitle = %q", got)
	}
}

func TestFallbackTitle_NoTokens(t *testing.T) {
	if got := memory.FallbackTitle("?? !! ..."); got != memory.FallbackTitleDefault {
		t.Errorf("FallbackTitle = %q, want %q", got, memory.FallbackTitleDefault)
	}
	if got := memory.FallbackTitle(""); got != memory.FallbackTitleDefault {
		t.Errorf("FallbackTitle(empty) = %q, want %q", got, memory.FallbackTitleDefault)
	}
}
