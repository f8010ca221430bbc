// Package session composes the cart store, currency guard, sync engine,
// history manager and aggregator into one explicitly constructed,
// per-session facade. There is no package-level state: the application's
// root owns the instance and its Init/Dispose lifecycle.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/aggregate"
	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/history"
	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
	"github.com/and161185/cartsync/internal/store"
	"github.com/and161185/cartsync/internal/syncengine"
)

// Options configures a Session.
type Options struct {
	Logger     *zap.Logger
	Remote     remote.Remote
	Converter  aggregate.Converter // optional; display-currency totals
	MaxHistory int
	Engine     syncengine.Options // Logger/OnCommit/OnNotify are overridden
	OnNotify   func(syncengine.Notification)
}

// AddOptions tunes AddItem behavior.
type AddOptions struct {
	Metadata map[string]string
	// Increment bumps the quantity when the id is already in the cart.
	// Without it a duplicate add is idempotent.
	Increment bool
}

// Session is the cart engine facade for one authenticated session.
type Session struct {
	log *zap.Logger
	id  string
	uid uuid.UUID

	store   *store.Store
	engine  *syncengine.Engine
	history *history.Manager
	agg     *aggregate.Aggregator

	histMu   sync.Mutex
	suppress int

	cancel context.CancelFunc
	closed atomic.Bool
}

// New constructs a Session. Call Init before use.
func New(opts Options) (*Session, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("session: remote is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		log:     log,
		store:   store.New(store.Options{Logger: log}),
		history: history.New(opts.MaxHistory),
	}

	engOpts := opts.Engine
	engOpts.Logger = log
	engOpts.OnCommit = s.recordCommit
	engOpts.OnNotify = opts.OnNotify
	s.engine = syncengine.New(s.store, opts.Remote, engOpts)
	s.agg = aggregate.New(s.store, opts.Converter)
	return s, nil
}

// Init binds the session id, performs the initial reconciliation pull and
// starts the push-event consumer.
func (s *Session) Init(ctx context.Context, sessionID string) error {
	if s.closed.Load() {
		return errs.ErrSessionClosed
	}
	s.id = sessionID
	s.uid = uuid.Must(uuid.NewV4())

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.engine.Run(runCtx)

	if _, err := s.engine.SyncWithServer(ctx); err != nil {
		s.log.Warn("initial cart pull failed", zap.String("session", sessionID), zap.Error(err))
		return err
	}
	s.log.Info("session initialized",
		zap.String("session", sessionID),
		zap.String("instance", s.uid.String()),
	)
	return nil
}

// Dispose tears the session down: stops the event consumer, waits for
// in-flight dispatches and clears local state.
func (s *Session) Dispose() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.engine.Wait()
	s.store.Clear()
	s.log.Info("session disposed", zap.String("session", s.id))
}

// Flush blocks until every in-flight async dispatch settles. Useful before
// reading the final sync status.
func (s *Session) Flush() {
	s.engine.Wait()
}

// PushEvent feeds a server-initiated event into the engine's queue.
// Transports of any kind (websocket, poller) call this.
func (s *Session) PushEvent(ev remote.Event) {
	if s.closed.Load() {
		return
	}
	s.engine.Enqueue(ev)
}

// --- read accessors ---

func (s *Session) Items() []model.CartItem         { return s.store.Items() }
func (s *Session) SavedItems() []model.CartItem    { return s.store.SavedItems() }
func (s *Session) SelectedItems() []model.CartItem { return s.store.SelectedItems() }
func (s *Session) SelectedIDs() []string           { return s.store.SelectedIDs() }
func (s *Session) SyncStatus() model.SyncStatus    { return s.engine.Status() }
func (s *Session) CanUndo() bool                   { return s.history.CanUndo() }
func (s *Session) CanRedo() bool                   { return s.history.CanRedo() }

// CartTotal returns per-currency totals over cart items.
func (s *Session) CartTotal() map[string]decimal.Decimal { return s.agg.CartTotal() }

// SelectedTotal returns per-currency totals over the selection.
func (s *Session) SelectedTotal() map[string]decimal.Decimal { return s.agg.SelectedTotal() }

// CartWeight returns the summed chargeable weight of cart items.
func (s *Session) CartWeight() decimal.Decimal { return s.agg.CartWeight() }

// Analytics returns a read-only summary of the current cart.
func (s *Session) Analytics() aggregate.Analytics { return s.agg.Analytics() }

// DisplayTotal converts the cart total into one display currency via the
// configured converter.
func (s *Session) DisplayTotal(ctx context.Context, currency string) (decimal.Decimal, error) {
	return s.agg.DisplayTotal(ctx, currency)
}

// --- history recording ---

func (s *Session) recordCommit(action string, prev model.CartState) {
	s.histMu.Lock()
	suppressed := s.suppress > 0
	s.histMu.Unlock()
	if suppressed {
		return
	}
	s.history.Push(action, prev)
}

// pauseHistory suppresses per-mutation history entries for compound
// operations (bulk, undo/redo replays) that record their own.
func (s *Session) pauseHistory() func() {
	s.histMu.Lock()
	s.suppress++
	s.histMu.Unlock()
	return func() {
		s.histMu.Lock()
		s.suppress--
		s.histMu.Unlock()
	}
}
