package syncengine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
)

// DiffKind classifies one reconciled difference.
type DiffKind string

const (
	DiffAdded   DiffKind = "added"
	DiffRemoved DiffKind = "removed"
	DiffChanged DiffKind = "changed"
)

// Diff is one per-id difference found while reconciling against the server.
type Diff struct {
	ID   string
	Kind DiffKind
}

// SyncWithServer pulls the authoritative cart and reconciles the local
// store by id, server-wins. Items with an unacknowledged local mutation in
// flight are skipped: their outcome settles through the normal dispatch
// path first (last-mutation-wins). The selection set is pruned to surviving
// ids by the store itself. Returns the applied differences for optional
// user notification.
//
// The whole pass is level-based: it compares states, not events, so running
// it twice in a row applies nothing the second time. That is what makes
// push events safe to deliver more than once.
func (e *Engine) SyncWithServer(ctx context.Context) ([]Diff, error) {
	server, err := e.rem.GetState(ctx)
	if err != nil {
		e.setStatus(model.StatusError)
		return nil, fmt.Errorf("%w: pull cart state: %v", errs.ErrNetwork, err)
	}

	local := e.store.Snapshot()
	diffs := e.applyServerState(local, server)

	e.mu.Lock()
	if e.inflight == 0 {
		e.status = model.StatusSynced
	}
	e.mu.Unlock()

	if len(diffs) > 0 {
		e.log.Info("reconciled with server", zap.Int("differences", len(diffs)))
		e.notify(Notification{Kind: "reconciled", Diffs: diffs})
	}
	return diffs, nil
}

func (e *Engine) applyServerState(local model.CartState, server remote.State) []Diff {
	localLines := make(map[string]remote.Line, len(local.Items)+len(local.Saved))
	for _, it := range local.Items {
		localLines[it.Quote.ID] = remote.Line{Item: it}
	}
	for _, it := range local.Saved {
		localLines[it.Quote.ID] = remote.Line{Item: it, Saved: true}
	}
	serverLines := make(map[string]remote.Line, len(server.Lines))
	for _, ln := range server.Lines {
		serverLines[ln.Item.Quote.ID] = ln
	}

	var diffs []Diff

	for id, sln := range serverLines {
		if e.pendingLocal(id) {
			continue
		}
		lln, exists := localLines[id]
		switch {
		case !exists:
			e.store.PutItem(sln.Item, sln.Saved)
			diffs = append(diffs, Diff{ID: id, Kind: DiffAdded})
		case lln.Saved != sln.Saved || lln.Item.Quantity != sln.Item.Quantity ||
			!lln.Item.Quote.Price.Equal(sln.Item.Quote.Price):
			e.store.PutItem(sln.Item, sln.Saved)
			diffs = append(diffs, Diff{ID: id, Kind: DiffChanged})
		}
	}

	for id := range localLines {
		if _, ok := serverLines[id]; ok {
			continue
		}
		if e.pendingLocal(id) {
			continue
		}
		e.store.RemoveItem(id)
		diffs = append(diffs, Diff{ID: id, Kind: DiffRemoved})
	}

	return diffs
}

// pendingLocal reports whether the item has a dispatched mutation that the
// server has not acknowledged yet.
func (e *Engine) pendingLocal(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq[id] > e.acked[id]
}
