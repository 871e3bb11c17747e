package snapshot

import (
	"testing"
	"time"

	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
)

func TestVersionIsContentHash(t *testing.T) {
	a := []core.Expense{{ID: "1", Title: "x", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 1)}}
	b := []core.Expense{{ID: "1", Title: "x", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 1)}}
	if Version(a) != Version(b) {
		t.Fatalf("equal lists should share a version")
	}
	b[0].Amount.Cents = 101
	if Version(a) == Version(b) {
		t.Fatalf("different lists should not share a version")
	}
	if len(Version(nil)) != 16 {
		t.Fatalf("unexpected version length: %q", Version(nil))
	}
}

func TestNewStampsSnapshot(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	s := New(ingest.Result{}, at)
	if s.Expenses == nil || s.Len() != 0 {
		t.Fatalf("expected empty non-nil expenses, got %#v", s.Expenses)
	}
	if s.FetchedAt.Location() != time.UTC || !s.FetchedAt.Equal(at) {
		t.Fatalf("unexpected fetchedAt: %v", s.FetchedAt)
	}
	if s.Version != Version(nil) {
		t.Fatalf("unexpected version: %s", s.Version)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := Snapshot{Expenses: []core.Expense{{ID: "a"}}}
	c := s.Clone()
	c.Expenses[0].ID = "b"
	if s.Expenses[0].ID != "a" {
		t.Fatalf("clone aliases the original")
	}
}
