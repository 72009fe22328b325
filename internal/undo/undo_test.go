package undo

import (
	"testing"

	"ghostwriter/internal/rope"
)

func TestInsertCoalescesAdjacent(t *testing.T) {
	buf := rope.FromText("")
	s := New()
	s.Insert(buf, 0, "a")
	s.Insert(buf, 1, "b")
	s.Insert(buf, 2, "c")
	if s.Depth() != 1 {
		t.Fatalf("expected coalesced depth 1, got %d", s.Depth())
	}
	if got := buf.Slice(0, buf.LenBytes()); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if !s.Undo(buf) {
		t.Fatal("expected undo to succeed")
	}
	if got := buf.Slice(0, buf.LenBytes()); got != "" {
		t.Fatalf("expected empty after undo, got %q", got)
	}
}

func TestInsertNonAdjacentDoesNotCoalesce(t *testing.T) {
	buf := rope.FromText("xx")
	s := New()
	s.Insert(buf, 0, "a")
	s.Insert(buf, 0, "b") // not adjacent to end of first insert
	if s.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", s.Depth())
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	buf := rope.FromText("hello")
	s := New()
	s.Delete(buf, 0, 5)
	if got := buf.Slice(0, buf.LenBytes()); got != "" {
		t.Fatalf("got %q", got)
	}
	if !s.Undo(buf) {
		t.Fatal("expected undo")
	}
	if got := buf.Slice(0, buf.LenBytes()); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if !s.Redo(buf) {
		t.Fatal("expected redo")
	}
	if got := buf.Slice(0, buf.LenBytes()); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestUndoRedoEmptyReturnsFalse(t *testing.T) {
	buf := rope.FromText("x")
	s := New()
	if s.Undo(buf) {
		t.Fatal("expected false on empty past")
	}
	if s.Redo(buf) {
		t.Fatal("expected false on empty future")
	}
}

func TestNewEditClearsFuture(t *testing.T) {
	buf := rope.FromText("ab")
	s := New()
	s.Insert(buf, 2, "c")
	s.Undo(buf)
	s.Insert(buf, 2, "d")
	if s.Redo(buf) {
		t.Fatal("expected future cleared by new edit")
	}
}
