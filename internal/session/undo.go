package session

import (
	"context"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
	"github.com/and161185/cartsync/internal/syncengine"
)

// Undo restores the most recent committed pre-state. The restore is not a
// bypass: it replays the difference through the documented store operations
// and dispatches each change, so the undone state re-syncs like any other
// mutation. Returns false when there is nothing to undo.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, errs.ErrSessionClosed
	}
	target, ok := s.history.Undo(s.store.Snapshot())
	if !ok {
		return false, nil
	}
	resume := s.pauseHistory()
	defer resume()
	return true, s.applyState(ctx, target)
}

// Redo re-applies the most recently undone transition.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, errs.ErrSessionClosed
	}
	target, ok := s.history.Redo(s.store.Snapshot())
	if !ok {
		return false, nil
	}
	resume := s.pauseHistory()
	defer resume()
	return true, s.applyState(ctx, target)
}

// applyState diffs the current state against target and replays the
// difference per item: upserts for added/changed lines, removals for
// vanished ones, then the selection set.
func (s *Session) applyState(ctx context.Context, target model.CartState) error {
	current := s.store.Snapshot()

	currentLines := stateLines(current)
	targetLines := stateLines(target)

	var firstErr error

	for id, tln := range targetLines {
		cln, exists := currentLines[id]
		if exists && cln.Saved == tln.Saved && cln.Item.Quantity == tln.Item.Quantity &&
			cln.Item.Quote.Price.Equal(tln.Item.Quote.Price) {
			continue
		}

		prevItem := s.store.SnapshotItem(id)
		s.store.PutItem(tln.Item, tln.Saved)
		item := tln.Item
		err := s.engine.DispatchWait(ctx, syncengine.Command{
			Action: "restore_item",
			ItemID: id,
			Mutation: remote.Mutation{
				Op:      remote.OpAdd, // server-side upsert
				ItemID:  id,
				Seq:     s.engine.NextSeq(id),
				ToSaved: tln.Saved,
				Item:    &item,
			},
			PrevItem:  prevItem,
			PrevState: current,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for id := range currentLines {
		if _, ok := targetLines[id]; ok {
			continue
		}
		prevItem := s.store.SnapshotItem(id)
		if !s.store.RemoveItem(id) {
			continue
		}
		err := s.engine.DispatchWait(ctx, syncengine.Command{
			Action: "restore_remove",
			ItemID: id,
			Mutation: remote.Mutation{
				Op:     remote.OpRemove,
				ItemID: id,
				Seq:    s.engine.NextSeq(id),
			},
			PrevItem:  prevItem,
			PrevState: current,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.store.ClearSelection()
	s.store.SelectAll(target.Selected)

	return firstErr
}

func stateLines(st model.CartState) map[string]remote.Line {
	out := make(map[string]remote.Line, len(st.Items)+len(st.Saved))
	for _, it := range st.Items {
		out[it.Quote.ID] = remote.Line{Item: it}
	}
	for _, it := range st.Saved {
		out[it.Quote.ID] = remote.Line{Item: it, Saved: true}
	}
	return out
}
