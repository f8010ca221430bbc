// Package remote defines the contract with the authoritative cart resource.
// The engine consumes this interface; the transport behind it is the
// collaborator's choice (the httpapi subpackage ships a JSON adapter, tests
// use the in-memory fake from remotetest).
package remote

import (
	"context"
	"time"

	"github.com/and161185/cartsync/internal/model"
)

// Op is a per-item mutation kind understood by the server.
type Op string

const (
	OpAdd            Op = "add"
	OpRemove         Op = "remove"
	OpUpdateQuantity Op = "update_quantity"
	OpMove           Op = "move"
)

// Mutation encodes one per-item change. Seq is the client-assigned,
// per-item monotonic sequence number used to discard stale responses.
type Mutation struct {
	Op       Op
	ItemID   string
	Seq      int64
	Quantity int64           // OpUpdateQuantity
	ToSaved  bool            // OpMove; on OpAdd selects the target collection
	Item     *model.CartItem // OpAdd (server treats add as upsert)
}

// Ack is the server's acknowledgement of an applied mutation.
type Ack struct {
	Seq int64
}

// Line is one server-side cart line, including saved-for-later membership.
type Line struct {
	Item  model.CartItem
	Saved bool
}

// State is the authoritative full cart state used for reconciliation pulls
// and force pushes.
type State struct {
	Lines []Line
}

// EventType classifies server-initiated push events.
type EventType string

const (
	EventCartChanged   EventType = "cart_changed"
	EventPaymentUpdate EventType = "payment_update"
)

// Event is a server-initiated change notification. Events carry no state;
// they only trigger a reconciliation pull, so delivering one twice is
// harmless.
type Event struct {
	Type   EventType
	ItemID string
	At     time.Time
}

// Remote is the authoritative cart resource as seen by the sync engine.
type Remote interface {
	// Apply executes one per-item mutation.
	Apply(ctx context.Context, m Mutation) (Ack, error)
	// GetState returns the full authoritative cart.
	GetState(ctx context.Context) (State, error)
	// PutState overwrites the server cart with the given state. Reserved
	// for explicit user-triggered recovery.
	PutState(ctx context.Context, st State) error
}
