package remote_test

import (
	"testing"
	"time"

	"github.com/recallhq/recall-go-sdk/core"
	"github.com/recallhq/recall-go-sdk/remote"
)

func TestKeywordsRoundTrip(t *testing.T) {
	joined := remote.JoinKeywords([]string{"a", "b", "c"})
	if joined != "a,b,c" {
		t.Errorf("JoinKeywords = %q; want %q", joined, "a,b,c")
	}

	got := remote.SplitKeywords("a,b,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("SplitKeywords returned %d keywords; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SplitKeywords[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestSplitKeywordsEmpty(t *testing.T) {
	if got := remote.SplitKeywords(""); len(got) != 0 {
		t.Errorf("SplitKeywords(\"\") = %v; want empty", got)
	}
}

func TestEncodeDecodeSummary(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := core.SmartSummary{
		ChatID:    "c1",
		Summary:   "Planning a trip.",
		Keywords:  []string{"travel", "japan"},
		UpdatedAt: now,
	}

	wire := remote.EncodeSummary(s)
	if wire.Keywords != "travel,japan" {
		t.Errorf("wire keywords = %q; want %q", wire.Keywords, "travel,japan")
	}

	back := remote.DecodeSummary(wire)
	if back.ChatID != s.ChatID || back.Summary != s.Summary || !back.UpdatedAt.Equal(now) {
		t.Errorf("decoded summary = %+v; want %+v", back, s)
	}
	if len(back.Keywords) != 2 || back.Keywords[0] != "travel" || back.Keywords[1] != "japan" {
		t.Errorf("decoded keywords = %v; want [travel japan]", back.Keywords)
	}
}
