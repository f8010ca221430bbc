// Package syncengine reconciles cart store mutations with the remote cart
// resource: optimistic apply, sequenced dispatch, stale-response discard,
// per-item rollback and server-wins conflict reconciliation. The engine is
// the only writer of the session sync status.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
	"github.com/and161185/cartsync/internal/store"
)

// Command is one dispatched mutation: the wire mutation plus the captured
// pre-states needed for rollback (per-item) and history (full state).
// Rollback reapplies PrevItem; it never tries to invert the mutation.
type Command struct {
	Action    string
	ItemID    string
	Mutation  remote.Mutation
	PrevItem  store.ItemSnapshot
	PrevState model.CartState
}

// Notification surfaces conflicts, errors and reconciliation outcomes to
// the caller for optional user display. Never used for control flow.
type Notification struct {
	Kind   string // "conflict" | "error" | "reconciled"
	ItemID string
	Diffs  []Diff
	Err    error
}

// Options configures an Engine.
type Options struct {
	Logger *zap.Logger
	// Retries is the number of extra dispatch attempts after the first
	// (bounded; the engine never retries forever). Default 1.
	Retries int
	// RetryDelay is the fixed delay between attempts. Default 200ms.
	RetryDelay time.Duration
	// QueueSize bounds the inbound push-event queue. Default 16.
	QueueSize int
	// OnCommit is invoked once per confirmed (non-stale) mutation with the
	// pre-mutation state; the session uses it to record history.
	OnCommit func(action string, prev model.CartState)
	// OnNotify receives conflict/error/reconciliation notifications.
	OnNotify func(n Notification)
}

// Engine drives synchronization for one session's store.
type Engine struct {
	log   *zap.Logger
	store *store.Store
	rem   remote.Remote

	retries int
	delay   time.Duration

	mu       sync.Mutex
	status   model.SyncStatus
	seq      map[string]int64 // highest assigned per item
	acked    map[string]int64 // highest confirmed per item
	inflight int

	events chan remote.Event

	onCommit func(string, model.CartState)
	onNotify func(Notification)

	wg sync.WaitGroup
}

// New constructs an Engine over the given store and remote.
func New(st *store.Store, rem remote.Remote, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	} else if opts.Retries == 0 {
		retries = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 16
	}
	return &Engine{
		log:      log,
		store:    st,
		rem:      rem,
		retries:  retries,
		delay:    delay,
		status:   model.StatusIdle,
		seq:      make(map[string]int64),
		acked:    make(map[string]int64),
		events:   make(chan remote.Event, queue),
		onCommit: opts.OnCommit,
		onNotify: opts.OnNotify,
	}
}

// Status returns the current session sync status.
func (e *Engine) Status() model.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// NextSeq assigns the next per-item sequence number. The caller stamps it
// onto the mutation before dispatch.
func (e *Engine) NextSeq(itemID string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[itemID]++
	return e.seq[itemID]
}

// Dispatch sends the command asynchronously. The optimistic mutation is
// already applied to the store; on failure the captured pre-state is
// restored and the caller is notified.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) {
	e.begin()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = e.dispatch(ctx, cmd)
	}()
}

// DispatchWait sends the command and waits for the outcome. Used by bulk
// operations that must report per-id results.
func (e *Engine) DispatchWait(ctx context.Context, cmd Command) error {
	e.begin()
	return e.dispatch(ctx, cmd)
}

// Wait blocks until all in-flight dispatches settle. Test and shutdown hook.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight++
	e.status = model.StatusSyncing
}

func (e *Engine) dispatch(ctx context.Context, cmd Command) error {
	backoff := retry.WithMaxRetries(uint64(e.retries), retry.NewConstant(e.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, aerr := e.rem.Apply(ctx, cmd.Mutation)
		if aerr == nil {
			return nil
		}
		if errors.Is(aerr, errs.ErrConflict) || errors.Is(aerr, errs.ErrValidation) {
			return aerr // divergence or rejection: retrying cannot help
		}
		return retry.RetryableError(aerr)
	})

	e.mu.Lock()
	e.inflight--
	stale := cmd.Mutation.Seq < e.seq[cmd.ItemID]

	if err == nil {
		if !stale && cmd.Mutation.Seq > e.acked[cmd.ItemID] {
			e.acked[cmd.ItemID] = cmd.Mutation.Seq
		}
		if e.inflight == 0 && e.status == model.StatusSyncing {
			e.status = model.StatusSynced
		}
		e.mu.Unlock()

		if stale {
			// A newer local mutation superseded this one; its response is
			// authoritative, ours is discarded (last-mutation-wins).
			e.log.Debug("stale ack discarded",
				zap.String("item", cmd.ItemID),
				zap.Int64("seq", cmd.Mutation.Seq),
			)
			return nil
		}
		if e.onCommit != nil {
			e.onCommit(cmd.Action, cmd.PrevState)
		}
		return nil
	}

	conflict := errors.Is(err, errs.ErrConflict)
	if conflict {
		e.status = model.StatusConflict
	} else {
		e.status = model.StatusError
	}
	if !stale && cmd.Mutation.Seq > e.acked[cmd.ItemID] {
		// Settled by rollback; the item must not look pending to reconciliation.
		e.acked[cmd.ItemID] = cmd.Mutation.Seq
	}
	e.mu.Unlock()

	if !stale {
		// Restore exactly the captured pre-state; the UI never shows a
		// partially applied mutation.
		e.store.RestoreItem(cmd.PrevItem)
	}
	e.log.Warn("mutation rolled back",
		zap.String("action", cmd.Action),
		zap.String("item", cmd.ItemID),
		zap.Int64("seq", cmd.Mutation.Seq),
		zap.Bool("conflict", conflict),
		zap.Error(err),
	)

	if conflict {
		diffs, rerr := e.SyncWithServer(ctx)
		if rerr != nil {
			e.log.Error("server-wins reconcile failed", zap.Error(rerr))
		}
		e.notify(Notification{Kind: "conflict", ItemID: cmd.ItemID, Diffs: diffs, Err: err})
	} else {
		e.notify(Notification{Kind: "error", ItemID: cmd.ItemID, Err: err})
	}
	return fmt.Errorf("dispatch %s for %s: %w", cmd.Action, cmd.ItemID, err)
}

// ForceSyncToServer pushes the full local state, overwriting the server
// cart. Deliberate escape hatch: it can destroy concurrent server-side
// changes, so nothing in the engine ever calls it automatically.
func (e *Engine) ForceSyncToServer(ctx context.Context) error {
	local := e.store.Snapshot()
	st := remote.State{}
	for _, it := range local.Items {
		st.Lines = append(st.Lines, remote.Line{Item: it})
	}
	for _, it := range local.Saved {
		st.Lines = append(st.Lines, remote.Line{Item: it, Saved: true})
	}

	if err := e.rem.PutState(ctx, st); err != nil {
		e.setStatus(model.StatusError)
		return fmt.Errorf("force sync: %w", err)
	}

	e.mu.Lock()
	for id, s := range e.seq {
		e.acked[id] = s
	}
	if e.inflight == 0 {
		e.status = model.StatusSynced
	}
	e.mu.Unlock()
	e.log.Info("forced local state to server",
		zap.Int("items", len(local.Items)),
		zap.Int("saved", len(local.Saved)),
	)
	return nil
}

func (e *Engine) setStatus(s model.SyncStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

func (e *Engine) notify(n Notification) {
	if e.onNotify != nil {
		e.onNotify(n)
	}
}
