// Package model defines domain entities shared by the store, sync engine and aggregation.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is an immutable copy of a quote taken at add-time.
// Prices never change after the item enters the cart, even if the
// upstream quote is repriced.
type QuoteSnapshot struct {
	ID                 string          // source quote identifier, unique within the cart
	DisplayID          string          // human-facing quote number
	Price              decimal.Decimal // unit price in Currency
	Currency           string          // ISO 4217 code
	OriginCountry      string          // ISO 3166-1 alpha-2
	DestinationCountry string          // ISO 3166-1 alpha-2
	Weight             decimal.Decimal // chargeable weight per unit, kg
}

// CartItem is a single cart (or saved-for-later) line. The same type backs
// both collections; membership is tracked by the store, never by the item.
type CartItem struct {
	Quote    QuoteSnapshot
	Quantity int64 // >= 1
	AddedAt  time.Time
	Metadata map[string]string // includes the last validation result
}

// Clone returns a deep copy safe to hand out across the store boundary.
func (i CartItem) Clone() CartItem {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// LineTotal returns Price * Quantity in the snapshot currency.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Quote.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// SyncStatus is the session-wide synchronization state. Transitions are
// driven only by the sync engine.
type SyncStatus int32

const (
	StatusIdle SyncStatus = iota
	StatusSyncing
	StatusSynced
	StatusConflict
	StatusError
)

func (s SyncStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusConflict:
		return "conflict"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CartState is a full value snapshot of the store: cart items, saved items
// and the selection set. Used for history entries, rollback captures and
// reconciliation diffs.
type CartState struct {
	Items    []CartItem
	Saved    []CartItem
	Selected []string
}

// Clone deep-copies the state.
func (s CartState) Clone() CartState {
	out := CartState{
		Items:    make([]CartItem, 0, len(s.Items)),
		Saved:    make([]CartItem, 0, len(s.Saved)),
		Selected: append([]string(nil), s.Selected...),
	}
	for _, it := range s.Items {
		out.Items = append(out.Items, it.Clone())
	}
	for _, it := range s.Saved {
		out.Saved = append(out.Saved, it.Clone())
	}
	return out
}

// HistorySnapshot records one committed transition for undo/redo.
type HistorySnapshot struct {
	Action    string
	Prev      CartState
	Timestamp time.Time
}
