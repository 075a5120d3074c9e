package archive

import (
	"context"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, content := range []string{"hello", "hi there", "what's my cat's name?"} {
		if err := s.SaveTurn(ctx, TurnRecord{SessionID: "sess-1", Speaker: SpeakerUser, Content: content}); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
	}

	got, err := s.RecentTurns(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("turn count = %d, want 2", len(got))
	}
	if got[0].Content != "hi there" || got[1].Content != "what's my cat's name?" {
		t.Fatalf("turns = %v, want the two most recent in order", got)
	}
	if got[0].ID == "" {
		t.Fatal("missing generated id")
	}

	if other, _ := s.RecentTurns(ctx, "sess-2", 10); len(other) != 0 {
		t.Fatalf("foreign session turns = %v, want none", other)
	}
}
