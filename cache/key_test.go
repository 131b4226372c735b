package cache

import (
	"testing"

	inkling "github.com/greyfriar/inkling"
)

func TestKeyDeterministic(t *testing.T) {
	a := NewKey("m1", inkling.ModeGenerate, "write a fibonacci function", "")
	b := NewKey("m1", inkling.ModeGenerate, "write a fibonacci function", "")
	if a != b {
		t.Errorf("identical requests produced different keys: %s vs %s", a, b)
	}
}

func TestKeyNormalizesWhitespace(t *testing.T) {
	a := NewKey("m1", inkling.ModeExplain, "  def  foo():\n\tpass  ", "")
	b := NewKey("m1", inkling.ModeExplain, "def foo(): pass", "")
	if a != b {
		t.Errorf("whitespace variants should share a key: %s vs %s", a, b)
	}
}

func TestKeyPreservesCase(t *testing.T) {
	a := NewKey("m1", inkling.ModeExplain, "Foo", "")
	b := NewKey("m1", inkling.ModeExplain, "foo", "")
	if a == b {
		t.Error("case-differing prompts must not share a key")
	}
}

func TestKeyVariesByModelAndMode(t *testing.T) {
	base := NewKey("m1", inkling.ModeGenerate, "p", "")
	if NewKey("m2", inkling.ModeGenerate, "p", "") == base {
		t.Error("different model must change the key")
	}
	if NewKey("m1", inkling.ModeExplain, "p", "") == base {
		t.Error("different mode must change the key")
	}
	if NewKey("m1", inkling.ModeGenerate, "p", "sfx") == base {
		t.Error("different suffix must change the key")
	}
}

func TestKeyFieldsDoNotBleed(t *testing.T) {
	// NUL separation: moving bytes between adjacent fields must not collide.
	a := NewKey("m1x", inkling.ModeGenerate, "p", "")
	b := NewKey("m1", inkling.ModeGenerate, "xp", "")
	if a == b {
		t.Error("field boundaries collided")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  a \t b\n\nc "); got != "a b c" {
		t.Errorf("Normalize = %q, want %q", got, "a b c")
	}
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize empty = %q", got)
	}
}
