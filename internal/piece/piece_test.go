package piece

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	for id := 0; id < Count; id++ {
		got, err := Parse(id)
		if err != nil {
			t.Fatalf("Parse(%d) unexpected error: %v", id, err)
		}
		if int(got) != id {
			t.Errorf("Parse(%d) = %d", id, got)
		}
	}

	for _, id := range []int{-1, 7, 255, 0x10004} {
		_, err := Parse(id)
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Errorf("Parse(%d): expected MalformedError, got %v", id, err)
		}
	}
}

func TestGameIDOrder(t *testing.T) {
	want := "SZJLTOI"
	if got := FormatSequence(All[:]); got != want {
		t.Errorf("id order = %s, want %s", got, want)
	}
}

func TestParseSequence(t *testing.T) {
	seq, err := ParseSequence("iotszjl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatSequence(seq) != "IOTSZJL" {
		t.Errorf("got %s", FormatSequence(seq))
	}

	if _, err := ParseSequence("IX"); err == nil {
		t.Error("expected error for unknown letter")
	}
}

func TestTextRoundTrip(t *testing.T) {
	var got Type
	if err := got.UnmarshalText([]byte("t")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != T {
		t.Errorf("got %v, want T", got)
	}
	if _, err := Type(9).MarshalText(); err == nil {
		t.Error("expected error marshaling invalid type")
	}
}

func TestSetOperations(t *testing.T) {
	s := Full
	if s.Len() != Count {
		t.Fatalf("full set has %d members", s.Len())
	}

	s = s.Remove(T).Remove(I)
	if s.Has(T) || s.Has(I) {
		t.Error("removed members still present")
	}
	if s.Len() != 5 {
		t.Errorf("expected 5 members, got %d", s.Len())
	}

	// Removing an absent member is a no-op.
	if s.Remove(T) != s {
		t.Error("removing absent member changed the set")
	}

	if _, ok := s.Only(); ok {
		t.Error("Only should fail on a multi-member set")
	}

	one := SetOf(L)
	got, ok := one.Only()
	if !ok || got != L {
		t.Errorf("Only() = %v, %v; want L, true", got, ok)
	}

	if !Set(0).Empty() || one.Empty() {
		t.Error("Empty reported wrong result")
	}

	if Full.String() != "{SZJLTOI}" {
		t.Errorf("unexpected String(): %s", Full.String())
	}
}
