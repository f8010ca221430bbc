package store

import (
	"fmt"

	"github.com/and161185/cartsync/internal/errs"
)

// Selection operations mutate only the selection set; item contents are
// never touched here.

// ToggleSelection flips the checked state of the id. The id must reference
// an existing cart or saved item.
func (s *Store) ToggleSelection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inCart := s.items[id]
	_, inSaved := s.saved[id]
	if !inCart && !inSaved {
		return fmt.Errorf("%w: %s", errs.ErrItemNotFound, id)
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	s.version++
	return nil
}

// SelectAll checks every listed id that references an existing item and
// returns how many are now selected. Unknown ids are skipped.
func (s *Store) SelectAll(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, id := range ids {
		_, inCart := s.items[id]
		_, inSaved := s.saved[id]
		if !inCart && !inSaved {
			continue
		}
		if _, ok := s.selected[id]; !ok {
			s.selected[id] = struct{}{}
			changed = true
		}
	}
	if changed {
		s.version++
	}
	return len(s.selected)
}

// ClearSelection unchecks everything.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return
	}
	s.selected = make(map[string]struct{})
	s.version++
}
