package store

import (
	"sort"

	"github.com/and161185/cartsync/internal/model"
)

// Read accessors and snapshot/restore. All returned items are clones; the
// internal collections never escape the lock.

// Items returns cart items ordered by add time, then id.
func (s *Store) Items() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedClones(s.items)
}

// SavedItems returns saved-for-later items ordered by add time, then id.
func (s *Store) SavedItems() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedClones(s.saved)
}

// SelectedIDs returns the checked ids in sorted order.
func (s *Store) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SelectedItems returns the checked items from both collections.
func (s *Store) SelectedItems() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CartItem, 0, len(s.selected))
	for id := range s.selected {
		if it, ok := s.items[id]; ok {
			out = append(out, it.Clone())
		} else if it, ok := s.saved[id]; ok {
			out = append(out, it.Clone())
		}
	}
	sortItems(out)
	return out
}

// Get returns the item for id from either collection.
func (s *Store) Get(id string) (item model.CartItem, saved bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, found := s.items[id]; found {
		return it.Clone(), false, true
	}
	if it, found := s.saved[id]; found {
		return it.Clone(), true, true
	}
	return model.CartItem{}, false, false
}

// Snapshot returns a full value copy of the current state.
func (s *Store) Snapshot() model.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.CartState{
		Items: sortedClones(s.items),
		Saved: sortedClones(s.saved),
	}
	for id := range s.selected {
		st.Selected = append(st.Selected, id)
	}
	sort.Strings(st.Selected)
	return st
}

// Restore replaces the whole store contents with the given state. Counts as
// one committed mutation.
func (s *Store) Restore(st model.CartState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]model.CartItem, len(st.Items))
	for _, it := range st.Items {
		s.items[it.Quote.ID] = it.Clone()
	}
	s.saved = make(map[string]model.CartItem, len(st.Saved))
	for _, it := range st.Saved {
		s.saved[it.Quote.ID] = it.Clone()
	}
	s.selected = make(map[string]struct{}, len(st.Selected))
	for _, id := range st.Selected {
		if _, ok := s.items[id]; ok {
			s.selected[id] = struct{}{}
		} else if _, ok := s.saved[id]; ok {
			s.selected[id] = struct{}{}
		}
	}
	s.version++
}

// SnapshotItem captures the exact per-item state for rollback.
func (s *Store) SnapshotItem(id string) ItemSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ItemSnapshot{ID: id}
	if _, ok := s.selected[id]; ok {
		snap.Selected = true
	}
	if it, ok := s.items[id]; ok {
		snap.Present = true
		snap.Item = it.Clone()
		return snap
	}
	if it, ok := s.saved[id]; ok {
		snap.Present = true
		snap.Saved = true
		snap.Item = it.Clone()
	}
	return snap
}

// RestoreItem puts one item back to its captured state, leaving every other
// item untouched. Used for per-mutation rollback.
func (s *Store) RestoreItem(snap ItemSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, snap.ID)
	delete(s.saved, snap.ID)
	delete(s.selected, snap.ID)
	if snap.Present {
		if snap.Saved {
			s.saved[snap.ID] = snap.Item.Clone()
		} else {
			s.items[snap.ID] = snap.Item.Clone()
		}
		if snap.Selected {
			s.selected[snap.ID] = struct{}{}
		}
	}
	s.version++
}

// PutItem force-writes one item into the given collection, preserving any
// existing selection. Used by server-wins reconciliation; regular writes go
// through AddItem.
func (s *Store) PutItem(item model.CartItem, saved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.Quote.ID
	delete(s.items, id)
	delete(s.saved, id)
	if saved {
		s.saved[id] = item.Clone()
	} else {
		s.items[id] = item.Clone()
	}
	s.version++
}

func sortedClones(m map[string]model.CartItem) []model.CartItem {
	out := make([]model.CartItem, 0, len(m))
	for _, it := range m {
		out = append(out, it.Clone())
	}
	sortItems(out)
	return out
}

func sortItems(items []model.CartItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].Quote.ID < items[j].Quote.ID
	})
}
