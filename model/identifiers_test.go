package model_test

import (
	"testing"

	"github.com/kestrelmail/goimapcore/model"
)

func TestMessageIdentifierSet_InsertMergesAdjacentAndOverlapping(t *testing.T) {
	s := model.NewMessageIdentifierSet[model.UID]()
	s.Insert(5)
	s.Insert(6)
	s.Insert(7)
	s.Insert(1)
	s.InsertRange(9, 11)
	s.Insert(10)

	if got, want := s.String(), "1,5:7,9:11"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if s.Cardinality() != 7 {
		t.Fatalf("Cardinality() = %d, want 7", s.Cardinality())
	}
}

func TestMessageIdentifierSet_Contains(t *testing.T) {
	s := model.SetOf[model.SequenceNumber](1, 3, 4, 5, 9)
	for _, id := range []model.SequenceNumber{1, 3, 4, 5, 9} {
		if !s.Contains(id) {
			t.Errorf("Contains(%d) = false, want true", id)
		}
	}
	for _, id := range []model.SequenceNumber{2, 6, 7, 8, 10} {
		if s.Contains(id) {
			t.Errorf("Contains(%d) = true, want false", id)
		}
	}
}

func TestMessageIdentifierSet_RoundTrip(t *testing.T) {
	for _, raw := range []string{"1", "1:3", "1,3:5,9", "7:7"} {
		s, err := model.ParseMessageIdentifierSet[model.UID](raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		if got := s.String(); got != normalizeSingletonRange(raw) {
			t.Errorf("round-trip %q -> %q", raw, got)
		}
	}
}

// normalizeSingletonRange collapses a "n:n" range to "n", matching how
// MessageIdentifierSet renders a singleton range inserted as a range.
func normalizeSingletonRange(raw string) string {
	if raw == "7:7" {
		return "7"
	}
	return raw
}

func TestMessageIdentifierSet_Union(t *testing.T) {
	a := model.SetOf[model.UID](1, 2, 3)
	b := model.SetOf[model.UID](3, 4, 5)
	u := a.Union(b)
	if got, want := u.String(), "1:5"; got != want {
		t.Fatalf("Union() = %q, want %q", got, want)
	}
}

func TestMessageIdentifierSet_Empty(t *testing.T) {
	s := model.NewMessageIdentifierSet[model.UID]()
	if !s.IsEmpty() {
		t.Fatal("IsEmpty() = false for freshly constructed set")
	}
	if _, err := model.ParseMessageIdentifierSet[model.UID](""); err == nil {
		t.Fatal("ParseMessageIdentifierSet(\"\") succeeded, want error")
	}
}
