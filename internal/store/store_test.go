package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
)

func quote(id string, price float64) model.QuoteSnapshot {
	return model.QuoteSnapshot{
		ID:            id,
		Price:         decimal.NewFromFloat(price),
		Currency:      "USD",
		OriginCountry: "US",
		Weight:        decimal.NewFromFloat(0.5),
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(Options{})
}

func TestAddItem_Idempotent(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	out, err := s.AddItem(quote("a", 50), nil, false)
	if err != nil || out != AddCreated {
		t.Fatalf("first add: out=%v err=%v", out, err)
	}
	out, err = s.AddItem(quote("a", 50), nil, false)
	if err != nil || out != AddAlreadyPresent {
		t.Fatalf("second add: out=%v err=%v", out, err)
	}

	items := s.Items()
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("want one item qty 1, got %+v", items)
	}
}

func TestAddItem_ExplicitIncrement(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), nil, false)

	out, err := s.AddItem(quote("a", 50), nil, true)
	if err != nil || out != AddIncremented {
		t.Fatalf("increment: out=%v err=%v", out, err)
	}
	if items := s.Items(); items[0].Quantity != 2 {
		t.Fatalf("want qty 2, got %d", items[0].Quantity)
	}
}

func TestAddItem_MovesFromSaved(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), nil, false)
	_ = s.UpdateQuantity("a", 3)
	if err := s.MoveToSaved("a"); err != nil {
		t.Fatalf("move to saved: %v", err)
	}

	out, err := s.AddItem(quote("a", 50), nil, false)
	if err != nil || out != AddMovedFromSaved {
		t.Fatalf("add of saved id: out=%v err=%v", out, err)
	}
	if len(s.SavedItems()) != 0 {
		t.Fatalf("id must not stay in saved")
	}
	items := s.Items()
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("move must preserve quantity, got %+v", items)
	}
}

func TestAddItem_CurrencyCorruptionBlocked(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	q := quote("bad", 3500)
	q.Currency = "USD"
	q.OriginCountry = "IN"

	_, err := s.AddItem(q, nil, false)
	if !errors.Is(err, errs.ErrCurrencyCorruption) {
		t.Fatalf("want ErrCurrencyCorruption, got %v", err)
	}
	if len(s.Items()) != 0 {
		t.Fatalf("corrupted quote must never enter the cart")
	}
}

func TestAddItem_ValidationMetadata(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), map[string]string{"source": "search"}, false)

	it, _, ok := s.Get("a")
	if !ok {
		t.Fatalf("item missing")
	}
	if it.Metadata["currency_check"] != "ok" || it.Metadata["source"] != "search" {
		t.Fatalf("metadata: %+v", it.Metadata)
	}
}

func TestRemoveItem_BenignAndPrunesSelection(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), nil, false)
	if err := s.ToggleSelection("a"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if !s.RemoveItem("a") {
		t.Fatalf("want removal")
	}
	if ids := s.SelectedIDs(); len(ids) != 0 {
		t.Fatalf("selection must be pruned, got %v", ids)
	}
	if s.RemoveItem("a") {
		t.Fatalf("second removal must be a no-op")
	}
}

func TestUpdateQuantity(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), nil, false)

	if err := s.UpdateQuantity("a", 0); !errors.Is(err, errs.ErrInvalidQuantity) {
		t.Fatalf("want ErrInvalidQuantity, got %v", err)
	}
	if err := s.UpdateQuantity("a", 2.9); err != nil {
		t.Fatalf("update: %v", err)
	}
	if it, _, _ := s.Get("a"); it.Quantity != 2 {
		t.Fatalf("fractional qty must floor, got %d", it.Quantity)
	}
	if err := s.UpdateQuantity("missing", 2); !errors.Is(err, errs.ErrItemNotFound) {
		t.Fatalf("want ErrItemNotFound, got %v", err)
	}
}

func TestMoves(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), map[string]string{"k": "v"}, false)

	if err := s.MoveToCart("a"); !errors.Is(err, errs.ErrItemNotFound) {
		t.Fatalf("move from wrong collection: %v", err)
	}
	if err := s.MoveToSaved("a"); err != nil {
		t.Fatalf("move to saved: %v", err)
	}
	saved := s.SavedItems()
	if len(saved) != 1 || saved[0].Metadata["k"] != "v" {
		t.Fatalf("move must preserve metadata, got %+v", saved)
	}
	if err := s.MoveToCart("a"); err != nil {
		t.Fatalf("move back: %v", err)
	}
}

func TestSelection(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 1), nil, false)
	_, _ = s.AddItem(quote("b", 2), nil, false)
	_ = s.MoveToSaved("b")

	if err := s.ToggleSelection("nope"); !errors.Is(err, errs.ErrItemNotFound) {
		t.Fatalf("toggle unknown: %v", err)
	}
	if n := s.SelectAll([]string{"a", "b", "ghost"}); n != 2 {
		t.Fatalf("want 2 selected, got %d", n)
	}
	if got := len(s.SelectedItems()); got != 2 {
		t.Fatalf("selected items span both collections, got %d", got)
	}
	s.ClearSelection()
	if len(s.SelectedIDs()) != 0 {
		t.Fatalf("selection not cleared")
	}
}

func TestBulkOps(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 1), nil, false)
	_, _ = s.AddItem(quote("b", 2), nil, false)
	_, _ = s.AddItem(quote("c", 3), nil, false)

	removed := s.BulkDelete([]string{"a", "ghost"})
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("bulk delete: %v", removed)
	}

	res := s.BulkMove([]string{"b", "ghost"}, true)
	if len(res.Succeeded) != 1 || len(res.Failed) != 1 {
		t.Fatalf("bulk move: %+v", res)
	}
	if len(s.SavedItems()) != 1 {
		t.Fatalf("b must be saved")
	}
}

func TestSnapshotRestoreItem_Exact(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, _ = s.AddItem(quote("a", 50), nil, false)
	_ = s.UpdateQuantity("a", 3)
	_ = s.ToggleSelection("a")

	snap := s.SnapshotItem("a")
	before := s.Snapshot()

	// Mutate, then roll back.
	_ = s.UpdateQuantity("a", 7)
	s.ClearSelection()
	s.RestoreItem(snap)
	_ = s.SelectAll(before.Selected)

	after := s.Snapshot()
	if len(after.Items) != 1 || after.Items[0].Quantity != 3 {
		t.Fatalf("restore mismatch: %+v", after.Items)
	}
	if len(after.Selected) != 1 || after.Selected[0] != "a" {
		t.Fatalf("selection restore mismatch: %v", after.Selected)
	}
}

func TestRestoreItem_RemovesReAdded(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	snap := s.SnapshotItem("a") // absent
	_, _ = s.AddItem(quote("a", 50), nil, false)
	s.RestoreItem(snap)
	if len(s.Items()) != 0 {
		t.Fatalf("restoring an absent snapshot must remove the item")
	}
}

func TestVersionBumpsOnMutationOnly(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	v0 := s.Version()
	_, _ = s.AddItem(quote("a", 1), nil, false)
	v1 := s.Version()
	if v1 == v0 {
		t.Fatalf("add must bump version")
	}
	_, _ = s.AddItem(quote("a", 1), nil, false) // idempotent no-op
	if s.Version() != v1 {
		t.Fatalf("no-op add must not bump version")
	}
	_ = s.Items()
	if s.Version() != v1 {
		t.Fatalf("reads must not bump version")
	}
}
