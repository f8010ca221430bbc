package session

import (
	"context"
	"fmt"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
	"github.com/and161185/cartsync/internal/store"
	"github.com/and161185/cartsync/internal/syncengine"
)

// Mutators. Every operation applies optimistically to the store first, then
// dispatches the encoded mutation; the engine rolls the item back if the
// server rejects it.

// AddItem normalizes a raw quote payload and adds it to the cart.
func (s *Session) AddItem(ctx context.Context, raw map[string]any, opts AddOptions) error {
	q, err := model.NormalizeQuoteSnapshot(raw)
	if err != nil {
		return err
	}
	return s.AddSnapshot(ctx, q, opts)
}

// AddSnapshot adds an already-normalized quote snapshot to the cart.
func (s *Session) AddSnapshot(ctx context.Context, q model.QuoteSnapshot, opts AddOptions) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	prevItem := s.store.SnapshotItem(q.ID)

	outcome, err := s.store.AddItem(q, opts.Metadata, opts.Increment)
	if err != nil {
		return err
	}
	if outcome == store.AddAlreadyPresent {
		return nil
	}

	item, saved, ok := s.store.Get(q.ID)
	if !ok || saved {
		// The optimistic write landed in the cart; anything else means a
		// concurrent removal raced us and the dispatch would be stale anyway.
		return nil
	}

	m := remote.Mutation{ItemID: q.ID, Seq: s.engine.NextSeq(q.ID)}
	action := "add_item"
	switch outcome {
	case store.AddCreated:
		m.Op = remote.OpAdd
		m.Item = &item
	case store.AddIncremented:
		m.Op = remote.OpUpdateQuantity
		m.Quantity = item.Quantity
		action = "increment_item"
	case store.AddMovedFromSaved:
		m.Op = remote.OpMove
		m.ToSaved = false
		action = "move_to_cart"
	}

	s.engine.Dispatch(ctx, syncengine.Command{
		Action:    action,
		ItemID:    q.ID,
		Mutation:  m,
		PrevItem:  prevItem,
		PrevState: prevState,
	})
	return nil
}

// RemoveItem removes the id from the cart or saved list. Absent ids are a
// no-op so retries stay safe.
func (s *Session) RemoveItem(ctx context.Context, id string) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	prevItem := s.store.SnapshotItem(id)

	if !s.store.RemoveItem(id) {
		return nil
	}

	s.engine.Dispatch(ctx, syncengine.Command{
		Action: "remove_item",
		ItemID: id,
		Mutation: remote.Mutation{
			Op:     remote.OpRemove,
			ItemID: id,
			Seq:    s.engine.NextSeq(id),
		},
		PrevItem:  prevItem,
		PrevState: prevState,
	})
	return nil
}

// UpdateQuantity sets a new quantity for the id.
func (s *Session) UpdateQuantity(ctx context.Context, id string, qty float64) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	prevItem := s.store.SnapshotItem(id)

	if err := s.store.UpdateQuantity(id, qty); err != nil {
		return err
	}
	item, _, ok := s.store.Get(id)
	if !ok {
		return nil
	}
	if prevItem.Present && prevItem.Item.Quantity == item.Quantity {
		return nil // floored to the same value, nothing to sync
	}

	s.engine.Dispatch(ctx, syncengine.Command{
		Action: "update_quantity",
		ItemID: id,
		Mutation: remote.Mutation{
			Op:       remote.OpUpdateQuantity,
			ItemID:   id,
			Seq:      s.engine.NextSeq(id),
			Quantity: item.Quantity,
		},
		PrevItem:  prevItem,
		PrevState: prevState,
	})
	return nil
}

// MoveToSaved moves a cart item into saved-for-later.
func (s *Session) MoveToSaved(ctx context.Context, id string) error {
	return s.move(ctx, id, true)
}

// MoveToCart moves a saved item back into the cart.
func (s *Session) MoveToCart(ctx context.Context, id string) error {
	return s.move(ctx, id, false)
}

func (s *Session) move(ctx context.Context, id string, toSaved bool) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	prevItem := s.store.SnapshotItem(id)

	var err error
	action := "move_to_cart"
	if toSaved {
		err = s.store.MoveToSaved(id)
		action = "move_to_saved"
	} else {
		err = s.store.MoveToCart(id)
	}
	if err != nil {
		return err
	}

	s.engine.Dispatch(ctx, syncengine.Command{
		Action: action,
		ItemID: id,
		Mutation: remote.Mutation{
			Op:      remote.OpMove,
			ItemID:  id,
			Seq:     s.engine.NextSeq(id),
			ToSaved: toSaved,
		},
		PrevItem:  prevItem,
		PrevState: prevState,
	})
	return nil
}

// --- selection (local-only, never dispatched) ---

// ToggleSelection flips the checked state of one id.
func (s *Session) ToggleSelection(id string) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}
	return s.store.ToggleSelection(id)
}

// SelectAll checks every listed id that exists.
func (s *Session) SelectAll(ids []string) int {
	return s.store.SelectAll(ids)
}

// ClearSelection unchecks everything.
func (s *Session) ClearSelection() {
	s.store.ClearSelection()
}

// --- bulk operations ---

// BulkDelete removes the listed ids. Each id's mutation is independent: on
// partial failure the succeeded ids stay removed and the failed ids are
// rolled back and reported.
func (s *Session) BulkDelete(ctx context.Context, ids []string) (store.BulkResult, error) {
	if s.closed.Load() {
		return store.BulkResult{}, errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	resume := s.pauseHistory()
	defer resume()

	var res store.BulkResult
	for _, id := range ids {
		prevItem := s.store.SnapshotItem(id)
		if !s.store.RemoveItem(id) {
			res.Succeeded = append(res.Succeeded, id) // already gone
			continue
		}
		err := s.engine.DispatchWait(ctx, syncengine.Command{
			Action: "bulk_delete",
			ItemID: id,
			Mutation: remote.Mutation{
				Op:     remote.OpRemove,
				ItemID: id,
				Seq:    s.engine.NextSeq(id),
			},
			PrevItem:  prevItem,
			PrevState: prevState,
		})
		if err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	if len(res.Succeeded) > 0 {
		s.history.Push("bulk_delete", prevState)
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("bulk delete: %d of %d ids failed", len(res.Failed), len(ids))
	}
	return res, nil
}

// BulkMove moves the listed ids across collections with the same partial
// failure semantics as BulkDelete.
func (s *Session) BulkMove(ctx context.Context, ids []string, toSaved bool) (store.BulkResult, error) {
	if s.closed.Load() {
		return store.BulkResult{}, errs.ErrSessionClosed
	}

	prevState := s.store.Snapshot()
	resume := s.pauseHistory()
	defer resume()

	var res store.BulkResult
	for _, id := range ids {
		prevItem := s.store.SnapshotItem(id)
		var err error
		if toSaved {
			err = s.store.MoveToSaved(id)
		} else {
			err = s.store.MoveToCart(id)
		}
		if err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		err = s.engine.DispatchWait(ctx, syncengine.Command{
			Action: "bulk_move",
			ItemID: id,
			Mutation: remote.Mutation{
				Op:      remote.OpMove,
				ItemID:  id,
				Seq:     s.engine.NextSeq(id),
				ToSaved: toSaved,
			},
			PrevItem:  prevItem,
			PrevState: prevState,
		})
		if err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	if len(res.Succeeded) > 0 {
		s.history.Push("bulk_move", prevState)
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("bulk move: %d of %d ids failed", len(res.Failed), len(ids))
	}
	return res, nil
}

// ClearCart removes everything, cart and saved list both.
func (s *Session) ClearCart(ctx context.Context) (store.BulkResult, error) {
	st := s.store.Snapshot()
	ids := make([]string, 0, len(st.Items)+len(st.Saved))
	for _, it := range st.Items {
		ids = append(ids, it.Quote.ID)
	}
	for _, it := range st.Saved {
		ids = append(ids, it.Quote.ID)
	}
	return s.BulkDelete(ctx, ids)
}

// --- sync ---

// SyncWithServer performs a full pull-and-reconcile, server-wins. Used
// after reconnect or on interval, independent of any pending mutation.
func (s *Session) SyncWithServer(ctx context.Context) ([]syncengine.Diff, error) {
	if s.closed.Load() {
		return nil, errs.ErrSessionClosed
	}
	return s.engine.SyncWithServer(ctx)
}

// ForceSyncToServer pushes the full local state over the server's. It can
// destroy concurrent server-side changes; callers must treat it as an
// explicit, user-confirmed recovery action.
func (s *Session) ForceSyncToServer(ctx context.Context) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}
	return s.engine.ForceSyncToServer(ctx)
}
