// Package history implements a bounded undo/redo log over committed cart
// transitions. Only states the server has confirmed are ever recorded, so
// undo cannot resurrect a mutation the server rejected.
package history

import (
	"sync"
	"time"

	"github.com/and161185/cartsync/internal/model"
)

// DefaultMaxSize bounds the undo stack when the caller passes zero.
const DefaultMaxSize = 50

// Manager keeps a linear history: committing a new transition after an undo
// clears the redo stack (no branching).
type Manager struct {
	mu   sync.Mutex
	max  int
	undo []model.HistorySnapshot
	redo []model.HistorySnapshot
}

// New constructs a Manager holding at most maxSize snapshots.
func New(maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{max: maxSize}
}

// Push records a committed transition: prev is the state immediately before
// the mutation. The oldest entry is evicted once the bound is reached.
func (m *Manager) Push(action string, prev model.CartState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.undo = append(m.undo, model.HistorySnapshot{
		Action:    action,
		Prev:      prev.Clone(),
		Timestamp: time.Now(),
	})
	if len(m.undo) > m.max {
		m.undo = m.undo[1:]
	}
	m.redo = nil
}

// CanUndo reports whether an undo target exists.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether a redo target exists.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Undo pops the most recent committed transition and returns the state to
// restore. current is the state at the moment of the call; it becomes the
// redo target.
func (m *Manager) Undo(current model.CartState) (model.CartState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.undo) == 0 {
		return model.CartState{}, false
	}
	last := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, model.HistorySnapshot{
		Action:    last.Action,
		Prev:      current.Clone(),
		Timestamp: time.Now(),
	})
	return last.Prev, true
}

// Redo re-applies the most recently undone transition.
func (m *Manager) Redo(current model.CartState) (model.CartState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.redo) == 0 {
		return model.CartState{}, false
	}
	last := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, model.HistorySnapshot{
		Action:    last.Action,
		Prev:      current.Clone(),
		Timestamp: time.Now(),
	})
	return last.Prev, true
}

// Len returns the undo stack depth.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo)
}
