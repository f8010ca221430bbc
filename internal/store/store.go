// Package store implements the canonical in-memory cart state: cart items,
// saved-for-later items and the selection set. It is the single source of
// truth for readers; every write goes through the operations defined here,
// each of which is atomic under one lock. No caller ever touches the
// underlying collections directly.
package store

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/errs"
	"github.com/and161185/cartsync/internal/guard"
	"github.com/and161185/cartsync/internal/model"
)

// AddOutcome reports what AddItem actually did.
type AddOutcome int

const (
	// AddCreated: a new cart item was created.
	AddCreated AddOutcome = iota
	// AddAlreadyPresent: the id was already in the cart; nothing changed.
	AddAlreadyPresent
	// AddIncremented: the id was already in the cart and the caller asked
	// for an explicit increment.
	AddIncremented
	// AddMovedFromSaved: the id existed in saved-for-later and was moved
	// into the cart instead of being duplicated.
	AddMovedFromSaved
)

// ItemSnapshot captures the full per-item state (collection membership,
// selection membership, contents) for exact rollback.
type ItemSnapshot struct {
	ID       string
	Present  bool
	Saved    bool
	Selected bool
	Item     model.CartItem
}

// BulkResult reports a per-id outcome of a bulk operation.
type BulkResult struct {
	Succeeded []string
	Failed    []string
}

// Options configures a Store.
type Options struct {
	Logger *zap.Logger
}

// Store holds cart state for one session. Safe for concurrent use.
type Store struct {
	log *zap.Logger

	mu       sync.Mutex
	items    map[string]model.CartItem
	saved    map[string]model.CartItem
	selected map[string]struct{}
	version  uint64
}

// New constructs an empty store.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:      log,
		items:    make(map[string]model.CartItem),
		saved:    make(map[string]model.CartItem),
		selected: make(map[string]struct{}),
	}
}

// Version returns the monotonically increasing store version. It is bumped
// exactly once per committed mutation and keys aggregation memoization.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// AddItem validates the quote through the currency guard and inserts it.
// Adding an id already in the cart is idempotent: the existing quantity is
// preserved unless increment is set. An id present in saved-for-later is
// moved, never duplicated.
func (s *Store) AddItem(q model.QuoteSnapshot, meta map[string]string, increment bool) (AddOutcome, error) {
	res := guard.Validate(q)
	if !res.Valid {
		s.log.Warn("add rejected by currency guard",
			zap.String("quote", q.ID),
			zap.Any("issues", res.Issues),
			zap.String("suggested_currency", res.SuggestedCurrency),
		)
		if res.Corrupted() {
			for _, is := range res.Issues {
				if is.Code == guard.CodeCurrencyCountryMismatch {
					return 0, fmt.Errorf("%w: quote %s: %s", errs.ErrCurrencyCorruption, q.ID, is.Detail)
				}
			}
		}
		return 0, fmt.Errorf("%w: quote %s: %s", errs.ErrValidation, q.ID, res.Issues[0].Detail)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.saved[q.ID]; ok {
		delete(s.saved, q.ID)
		s.items[q.ID] = it
		s.version++
		s.log.Debug("add moved saved item to cart", zap.String("id", q.ID))
		return AddMovedFromSaved, nil
	}

	if it, ok := s.items[q.ID]; ok {
		if !increment {
			return AddAlreadyPresent, nil
		}
		it.Quantity++
		s.items[q.ID] = it
		s.version++
		return AddIncremented, nil
	}

	md := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		md[k] = v
	}
	md["currency_check"] = "ok"

	s.items[q.ID] = model.CartItem{
		Quote:    q,
		Quantity: 1,
		AddedAt:  time.Now(),
		Metadata: md,
	}
	s.version++
	s.log.Debug("item added", zap.String("id", q.ID), zap.String("currency", q.Currency))
	return AddCreated, nil
}

// RemoveItem removes the id from whichever collection holds it and from the
// selection set in the same critical section. Absent ids are a no-op, not
// an error, so retries are safe.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inCart := s.items[id]
	_, inSaved := s.saved[id]
	if !inCart && !inSaved {
		return false
	}
	delete(s.items, id)
	delete(s.saved, id)
	delete(s.selected, id)
	s.version++
	s.log.Debug("item removed", zap.String("id", id))
	return true
}

// UpdateQuantity sets the quantity for the id in either collection.
// Fractional input is floored; anything below one is rejected.
func (s *Store) UpdateQuantity(id string, qty float64) error {
	if qty < 1 {
		return fmt.Errorf("%w: %v", errs.ErrInvalidQuantity, qty)
	}
	n := int64(math.Floor(qty))

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.items[id]; ok {
		if it.Quantity == n {
			return nil
		}
		it.Quantity = n
		s.items[id] = it
		s.version++
		return nil
	}
	if it, ok := s.saved[id]; ok {
		if it.Quantity == n {
			return nil
		}
		it.Quantity = n
		s.saved[id] = it
		s.version++
		return nil
	}
	return fmt.Errorf("%w: %s", errs.ErrItemNotFound, id)
}

// MoveToSaved moves an item from the cart to saved-for-later, preserving
// quantity and metadata.
func (s *Store) MoveToSaved(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s not in cart", errs.ErrItemNotFound, id)
	}
	delete(s.items, id)
	s.saved[id] = it
	s.version++
	return nil
}

// MoveToCart moves an item from saved-for-later back into the cart.
func (s *Store) MoveToCart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.saved[id]
	if !ok {
		return fmt.Errorf("%w: %s not in saved", errs.ErrItemNotFound, id)
	}
	delete(s.saved, id)
	s.items[id] = it
	s.version++
	return nil
}

// BulkDelete removes every listed id in one critical section and returns
// the ids that were actually present.
func (s *Store) BulkDelete(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, id := range ids {
		_, inCart := s.items[id]
		_, inSaved := s.saved[id]
		if !inCart && !inSaved {
			continue
		}
		delete(s.items, id)
		delete(s.saved, id)
		delete(s.selected, id)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		s.version++
	}
	return removed
}

// BulkMove moves every listed id across collections in one critical
// section. Ids absent from the source collection are reported as failed;
// the rest transition (each id's mutation is independent).
func (s *Store) BulkMove(ids []string, toSaved bool) BulkResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res BulkResult
	for _, id := range ids {
		src, dst := s.items, s.saved
		if !toSaved {
			src, dst = s.saved, s.items
		}
		it, ok := src[id]
		if !ok {
			res.Failed = append(res.Failed, id)
			continue
		}
		delete(src, id)
		dst[id] = it
		res.Succeeded = append(res.Succeeded, id)
	}
	if len(res.Succeeded) > 0 {
		s.version++
	}
	return res
}

// Clear empties all collections (logout / explicit clear).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]model.CartItem)
	s.saved = make(map[string]model.CartItem)
	s.selected = make(map[string]struct{})
	s.version++
}
