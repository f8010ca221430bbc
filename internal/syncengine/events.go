package syncengine

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/remote"
)

// Inbound push events from any channel (websocket, poller, webhook relay)
// funnel through one queue into one reconciliation function, preserving the
// single-writer discipline for the store.

// Enqueue hands a server-initiated event to the engine. Non-blocking: when
// the queue is full the event is dropped, which is safe because the next
// accepted event triggers the same full reconciliation.
func (e *Engine) Enqueue(ev remote.Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("event queue full, dropping",
			zap.String("type", string(ev.Type)),
			zap.String("item", ev.ItemID),
		)
	}
}

// Run consumes the event queue until ctx is cancelled. Bursts are coalesced
// into a single reconciliation pull.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.drain()
			e.log.Debug("push event received", zap.String("type", string(ev.Type)))
			if _, err := e.SyncWithServer(ctx); err != nil {
				e.log.Error("event-triggered reconcile failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case <-e.events:
		default:
			return
		}
	}
}
