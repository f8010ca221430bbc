// Package remotetest provides an in-memory Remote with scriptable failures
// for engine and session tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/and161185/cartsync/internal/remote"
)

// Fake is an in-memory authoritative cart. Zero value is not usable; use New.
type Fake struct {
	mu       sync.Mutex
	lines    map[string]remote.Line
	failItem map[string]error
	failNext []error
	getErr   error
	putErr   error
	calls    []remote.Mutation
}

var _ remote.Remote = (*Fake)(nil)

// New constructs an empty fake.
func New() *Fake {
	return &Fake{
		lines:    make(map[string]remote.Line),
		failItem: make(map[string]error),
	}
}

// Seed installs server-side lines without going through Apply.
func (f *Fake) Seed(lines ...remote.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ln := range lines {
		f.lines[ln.Item.Quote.ID] = ln
	}
}

// Drop removes a line server-side, simulating a concurrent session.
func (f *Fake) Drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, id)
}

// FailItem makes every Apply for the given item id return err.
func (f *Fake) FailItem(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failItem[id] = err
}

// FailNext queues errors returned by the next Apply calls, in order.
func (f *Fake) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, errs...)
}

// FailGet makes GetState return err.
func (f *Fake) FailGet(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// Calls returns every recorded mutation.
func (f *Fake) Calls() []remote.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Mutation(nil), f.calls...)
}

// Apply records the mutation and applies it to the in-memory cart, or
// returns a scripted error.
func (f *Fake) Apply(ctx context.Context, m remote.Mutation) (remote.Ack, error) {
	if err := ctx.Err(); err != nil {
		return remote.Ack{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, m)

	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		if err != nil {
			return remote.Ack{}, err
		}
	}
	if err, ok := f.failItem[m.ItemID]; ok && err != nil {
		return remote.Ack{}, err
	}

	switch m.Op {
	case remote.OpAdd:
		if m.Item != nil {
			f.lines[m.ItemID] = remote.Line{Item: m.Item.Clone(), Saved: m.ToSaved}
		}
	case remote.OpRemove:
		delete(f.lines, m.ItemID)
	case remote.OpUpdateQuantity:
		if ln, ok := f.lines[m.ItemID]; ok {
			ln.Item.Quantity = m.Quantity
			f.lines[m.ItemID] = ln
		}
	case remote.OpMove:
		if ln, ok := f.lines[m.ItemID]; ok {
			ln.Saved = m.ToSaved
			f.lines[m.ItemID] = ln
		}
	}
	return remote.Ack{Seq: m.Seq}, nil
}

// GetState returns the in-memory cart.
func (f *Fake) GetState(ctx context.Context) (remote.State, error) {
	if err := ctx.Err(); err != nil {
		return remote.State{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return remote.State{}, f.getErr
	}
	st := remote.State{}
	for _, ln := range f.lines {
		ln.Item = ln.Item.Clone()
		st.Lines = append(st.Lines, ln)
	}
	return st, nil
}

// PutState overwrites the in-memory cart.
func (f *Fake) PutState(ctx context.Context, st remote.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.lines = make(map[string]remote.Line, len(st.Lines))
	for _, ln := range st.Lines {
		ln.Item = ln.Item.Clone()
		f.lines[ln.Item.Quote.ID] = ln
	}
	return nil
}
