package session

import (
	"fmt"
	"testing"
	"time"

	inkling "github.com/greyfriar/inkling"
)

func turn(prompt string) Turn {
	return Turn{
		Prompt:    prompt,
		Response:  "resp:" + prompt,
		Mode:      inkling.ModeExplain,
		Timestamp: time.Now(),
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	s := NewStore(2)
	s.Append(turn("a"))
	s.Append(turn("b"))
	s.Append(turn("c"))

	got := s.History(10)
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Prompt != "b" || got[1].Prompt != "c" {
		t.Errorf("expected [b c], got [%s %s]", got[0].Prompt, got[1].Prompt)
	}
}

func TestAppendNeverExceedsCap(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 50; i++ {
		s.Append(turn(fmt.Sprintf("p%d", i)))
		if s.Len() > 3 {
			t.Fatalf("store grew past cap: %d turns after %d appends", s.Len(), i+1)
		}
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 turns, got %d", s.Len())
	}
}

func TestHistoryChronologicalOrder(t *testing.T) {
	s := NewStore(10)
	s.Append(turn("first"))
	s.Append(turn("second"))
	s.Append(turn("third"))

	got := s.History(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Prompt != "second" || got[1].Prompt != "third" {
		t.Errorf("expected oldest-first [second third], got [%s %s]", got[0].Prompt, got[1].Prompt)
	}
}

func TestHistoryLimitExceedsAvailable(t *testing.T) {
	s := NewStore(10)
	s.Append(turn("only"))

	got := s.History(100)
	if len(got) != 1 || got[0].Prompt != "only" {
		t.Errorf("expected all available turns, got %+v", got)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewStore(10)
	s.Append(turn("a"))

	first := s.History(10)
	first[0].Prompt = "mutated"

	second := s.History(10)
	if second[0].Prompt != "a" {
		t.Errorf("store turn mutated through history slice: %q", second[0].Prompt)
	}
}

func TestClearIdempotent(t *testing.T) {
	s := NewStore(5)
	s.Append(turn("a"))
	s.Append(turn("b"))

	s.Clear()
	s.Clear()

	for _, n := range []int{1, 5, 100} {
		if got := s.History(n); len(got) != 0 {
			t.Errorf("History(%d) after Clear = %d turns, want 0", n, len(got))
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", s.Len())
	}
}

func TestDefaultCap(t *testing.T) {
	s := NewStore(0)
	for i := 0; i < DefaultMaxTurns+5; i++ {
		s.Append(turn(fmt.Sprintf("p%d", i)))
	}
	if s.Len() != DefaultMaxTurns {
		t.Errorf("expected default cap %d, got %d", DefaultMaxTurns, s.Len())
	}
}
