package syncengine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
	"github.com/and161185/cartsync/internal/remote/remotetest"
	"github.com/and161185/cartsync/internal/store"
)

func quote(id string, price float64) model.QuoteSnapshot {
	return model.QuoteSnapshot{
		ID:            id,
		Price:         decimal.NewFromFloat(price),
		Currency:      "USD",
		OriginCountry: "US",
	}
}

type commitLog struct {
	actions []string
}

func (c *commitLog) record(action string, _ model.CartState) {
	c.actions = append(c.actions, action)
}

func newEngine(t *testing.T, fake *remotetest.Fake, commits *commitLog) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(store.Options{})
	opts := Options{RetryDelay: time.Millisecond}
	if commits != nil {
		opts.OnCommit = commits.record
	}
	return New(st, fake, opts), st
}

func removeCmd(e *Engine, st *store.Store, id string) Command {
	prevState := st.Snapshot()
	prevItem := st.SnapshotItem(id)
	st.RemoveItem(id)
	return Command{
		Action: "remove_item",
		ItemID: id,
		Mutation: remote.Mutation{
			Op:     remote.OpRemove,
			ItemID: id,
			Seq:    e.NextSeq(id),
		},
		PrevItem:  prevItem,
		PrevState: prevState,
	}
}

func TestDispatch_CommitOnSuccess(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	commits := &commitLog{}
	e, st := newEngine(t, fake, commits)
	_, _ = st.AddItem(quote("a", 50), nil, false)

	if err := e.DispatchWait(context.Background(), removeCmd(e, st, "a")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(commits.actions) != 1 || commits.actions[0] != "remove_item" {
		t.Fatalf("want one commit, got %v", commits.actions)
	}
	if e.Status() != model.StatusSynced {
		t.Fatalf("want synced, got %s", e.Status())
	}
}

func TestDispatch_NetworkErrorRollsBackExactly(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	commits := &commitLog{}
	e, st := newEngine(t, fake, commits)
	_, _ = st.AddItem(quote("a", 50), nil, false)
	_ = st.UpdateQuantity("a", 3)
	_ = st.ToggleSelection("a")

	pre := st.Snapshot()

	// Initial attempt and the single bounded retry both fail.
	netErr := fmt.Errorf("%w: dial tcp: refused", errs.ErrNetwork)
	fake.FailNext(netErr, netErr)

	err := e.DispatchWait(context.Background(), removeCmd(e, st, "a"))
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("want network error, got %v", err)
	}
	if got := len(fake.Calls()); got != 2 {
		t.Fatalf("want exactly 2 attempts (1 retry), got %d", got)
	}

	post := st.Snapshot()
	if !reflect.DeepEqual(pre, post) {
		t.Fatalf("rollback must restore the pre-mutation state exactly:\npre=%+v\npost=%+v", pre, post)
	}
	if e.Status() != model.StatusError {
		t.Fatalf("want error status, got %s", e.Status())
	}
	if len(commits.actions) != 0 {
		t.Fatalf("rejected mutations must never commit to history")
	}
}

func TestDispatch_ConflictTriggersServerWins(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	var notes []Notification
	st := store.New(store.Options{})
	e := New(st, fake, Options{
		RetryDelay: time.Millisecond,
		OnNotify:   func(n Notification) { notes = append(notes, n) },
	})

	_, _ = st.AddItem(quote("a", 50), nil, false)
	_ = st.ToggleSelection("a")
	// Server no longer has the item: the qty update conflicts, and the
	// subsequent pull removes it locally.
	fake.FailItem("a", fmt.Errorf("%w: gone", errs.ErrConflict))

	prevState := st.Snapshot()
	prevItem := st.SnapshotItem("a")
	_ = st.UpdateQuantity("a", 5)
	err := e.DispatchWait(context.Background(), Command{
		Action: "update_quantity",
		ItemID: "a",
		Mutation: remote.Mutation{
			Op:       remote.OpUpdateQuantity,
			ItemID:   "a",
			Seq:      e.NextSeq("a"),
			Quantity: 5,
		},
		PrevItem:  prevItem,
		PrevState: prevState,
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	if got := len(fake.Calls()); got != 1 {
		t.Fatalf("conflicts must not be retried, got %d attempts", got)
	}

	// Server-wins: the item is gone locally and pruned from the selection.
	if len(st.Items()) != 0 {
		t.Fatalf("server-wins must remove the item, got %+v", st.Items())
	}
	if len(st.SelectedIDs()) != 0 {
		t.Fatalf("selection must be pruned")
	}

	foundConflict := false
	for _, n := range notes {
		if n.Kind == "conflict" && n.ItemID == "a" {
			foundConflict = true
		}
	}
	if !foundConflict {
		t.Fatalf("conflict must be surfaced, got %+v", notes)
	}
}

func TestDispatch_StaleResponseDiscarded(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	commits := &commitLog{}
	e, st := newEngine(t, fake, commits)
	_, _ = st.AddItem(quote("a", 50), nil, false)

	cmd := removeCmd(e, st, "a") // seq 1
	_ = e.NextSeq("a")           // a newer local mutation supersedes it

	if err := e.DispatchWait(context.Background(), cmd); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(commits.actions) != 0 {
		t.Fatalf("stale acks must not commit, got %v", commits.actions)
	}
}

func TestDispatch_StaleFailureSkipsRollback(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, st := newEngine(t, fake, nil)
	_, _ = st.AddItem(quote("a", 50), nil, false)

	cmd := removeCmd(e, st, "a") // optimistic removal applied, seq 1
	_ = e.NextSeq("a")           // superseded

	netErr := fmt.Errorf("%w: boom", errs.ErrNetwork)
	fake.FailNext(netErr, netErr)
	_ = e.DispatchWait(context.Background(), cmd)

	// The newer mutation owns the item state; the stale failure must not
	// resurrect it.
	if len(st.Items()) != 0 {
		t.Fatalf("stale rollback must be skipped")
	}
}

func TestSyncWithServer_ServerWinsAndIdempotent(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, st := newEngine(t, fake, nil)

	_, _ = st.AddItem(quote("a", 10), nil, false)
	_, _ = st.AddItem(quote("b", 20), nil, false)
	_ = st.SelectAll([]string{"a", "b"})

	bItem := model.CartItem{Quote: quote("b", 20), Quantity: 4, AddedAt: time.Now()}
	cItem := model.CartItem{Quote: quote("c", 30), Quantity: 1, AddedAt: time.Now()}
	fake.Seed(remote.Line{Item: bItem}, remote.Line{Item: cItem})

	diffs, err := e.SyncWithServer(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	kinds := map[string]DiffKind{}
	for _, d := range diffs {
		kinds[d.ID] = d.Kind
	}
	if kinds["a"] != DiffRemoved || kinds["b"] != DiffChanged || kinds["c"] != DiffAdded {
		t.Fatalf("unexpected diffs: %v", kinds)
	}

	if it, _, ok := st.Get("b"); !ok || it.Quantity != 4 {
		t.Fatalf("server quantity must win")
	}
	if ids := st.SelectedIDs(); len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("selection must keep only surviving ids, got %v", ids)
	}
	if e.Status() != model.StatusSynced {
		t.Fatalf("want synced, got %s", e.Status())
	}

	// Level-based reconcile: a second pass applies nothing.
	diffs, err = e.SyncWithServer(context.Background())
	if err != nil || len(diffs) != 0 {
		t.Fatalf("second pass must be a no-op, diffs=%v err=%v", diffs, err)
	}
}

func TestSyncWithServer_SkipsPendingItems(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, st := newEngine(t, fake, nil)
	_, _ = st.AddItem(quote("a", 10), nil, false)

	// An unacknowledged local mutation is in flight for "a"; the pull must
	// not clobber it even though the server has no such item.
	_ = e.NextSeq("a")

	diffs, err := e.SyncWithServer(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(diffs) != 0 || len(st.Items()) != 1 {
		t.Fatalf("pending item must be skipped, diffs=%v", diffs)
	}
}

func TestSyncWithServer_PullFailure(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, _ := newEngine(t, fake, nil)
	fake.FailGet(fmt.Errorf("%w: 502", errs.ErrNetwork))

	if _, err := e.SyncWithServer(context.Background()); !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("want network error, got %v", err)
	}
	if e.Status() != model.StatusError {
		t.Fatalf("want error status, got %s", e.Status())
	}
}

func TestForceSyncToServer(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, st := newEngine(t, fake, nil)

	fake.Seed(remote.Line{Item: model.CartItem{Quote: quote("server-only", 1), Quantity: 1}})
	_, _ = st.AddItem(quote("a", 10), nil, false)
	_ = st.MoveToSaved("a")

	if err := e.ForceSyncToServer(context.Background()); err != nil {
		t.Fatalf("force sync: %v", err)
	}
	srv, _ := fake.GetState(context.Background())
	if len(srv.Lines) != 1 || srv.Lines[0].Item.Quote.ID != "a" || !srv.Lines[0].Saved {
		t.Fatalf("server must mirror local state, got %+v", srv.Lines)
	}
	if e.Status() != model.StatusSynced {
		t.Fatalf("want synced, got %s", e.Status())
	}
}

func TestRun_EventTriggersReconcile(t *testing.T) {
	t.Parallel()
	fake := remotetest.New()
	e, st := newEngine(t, fake, nil)

	_, _ = st.AddItem(quote("a", 10), nil, false)
	fake.Drop("a") // server-side removal by another session

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.Enqueue(remote.Event{Type: remote.EventCartChanged, ItemID: "a", At: time.Now()})
	// Duplicate delivery must be harmless.
	e.Enqueue(remote.Event{Type: remote.EventCartChanged, ItemID: "a", At: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for len(st.Items()) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(st.Items()) != 0 {
		t.Fatalf("event must trigger server-wins removal")
	}
}
