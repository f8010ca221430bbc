// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/engine layers.
var (
	// ErrValidation indicates the input failed local validation; the mutation was never applied.
	ErrValidation = errors.New("validation failed")

	// ErrCurrencyCorruption indicates a currency/country mismatch in a quote snapshot.
	// It specializes ErrValidation and always blocks the add.
	ErrCurrencyCorruption = errors.New("currency corruption")

	// ErrItemNotFound indicates the item is absent from the required collection.
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrConflict indicates the server state diverged from the optimistic local state.
	ErrConflict = errors.New("conflict")

	// ErrNetwork indicates a transport failure; the optimistic mutation was rolled back.
	ErrNetwork = errors.New("network error")

	// ErrSessionClosed indicates an operation on a disposed session.
	ErrSessionClosed = errors.New("session closed")
)
