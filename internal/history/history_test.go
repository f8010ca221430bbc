package history

import (
	"fmt"
	"testing"

	"github.com/and161185/cartsync/internal/model"
)

func state(ids ...string) model.CartState {
	var st model.CartState
	for _, id := range ids {
		st.Items = append(st.Items, model.CartItem{
			Quote:    model.QuoteSnapshot{ID: id},
			Quantity: 1,
		})
	}
	return st
}

func TestUndoRedoRoundTrip(t *testing.T) {
	t.Parallel()
	m := New(10)

	s0 := state()
	s1 := state("a")

	m.Push("add_item", s0) // commit produced s1
	if !m.CanUndo() || m.CanRedo() {
		t.Fatalf("want undo only")
	}

	target, ok := m.Undo(s1)
	if !ok || len(target.Items) != 0 {
		t.Fatalf("undo target: %+v ok=%v", target, ok)
	}
	if !m.CanRedo() {
		t.Fatalf("redo must be available after undo")
	}

	target, ok = m.Redo(s0)
	if !ok || len(target.Items) != 1 || target.Items[0].Quote.ID != "a" {
		t.Fatalf("redo must return the post-commit state, got %+v", target)
	}
}

func TestRedoClearedOnNewCommit(t *testing.T) {
	t.Parallel()
	m := New(10)
	m.Push("m1", state())
	if _, ok := m.Undo(state("a")); !ok {
		t.Fatalf("undo failed")
	}
	m.Push("m2", state())
	if m.CanRedo() {
		t.Fatalf("redo must be cleared by a new commit (linear history)")
	}
}

func TestEviction(t *testing.T) {
	t.Parallel()
	m := New(3)
	for i := 0; i < 5; i++ {
		m.Push("m", state(fmt.Sprintf("q%d", i)))
	}
	if m.Len() != 3 {
		t.Fatalf("want bounded depth 3, got %d", m.Len())
	}
	// The three newest survive: q2, q3, q4.
	st, _ := m.Undo(state())
	if st.Items[0].Quote.ID != "q4" {
		t.Fatalf("newest first, got %s", st.Items[0].Quote.ID)
	}
}

func TestUndoEmpty(t *testing.T) {
	t.Parallel()
	m := New(0)
	if _, ok := m.Undo(state()); ok {
		t.Fatalf("undo on empty history must report false")
	}
	if _, ok := m.Redo(state()); ok {
		t.Fatalf("redo on empty history must report false")
	}
}

func TestPushCopiesState(t *testing.T) {
	t.Parallel()
	m := New(10)
	st := state("a")
	st.Items[0].Metadata = map[string]string{"k": "v"}
	m.Push("m", st)

	st.Items[0].Metadata["k"] = "mutated"
	got, _ := m.Undo(state())
	if got.Items[0].Metadata["k"] != "v" {
		t.Fatalf("history must deep-copy snapshots")
	}
}
