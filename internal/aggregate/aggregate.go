// Package aggregate computes per-currency totals and weights over cart
// store snapshots. Synchronous totals never convert currencies; the
// display-currency layer crosses the async exchange-rate boundary
// separately so a slow or failing rate lookup can never corrupt the
// authoritative per-currency sums.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/cartsync/internal/model"
)

// TotalsByCurrency groups items by snapshot currency and sums price*qty.
// Pure function; saved items are included only if the caller passes them.
func TotalsByCurrency(items []model.CartItem) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 4)
	for _, it := range items {
		cur := it.Quote.Currency
		out[cur] = out[cur].Add(it.LineTotal())
	}
	return out
}

// TotalWeight sums weight*qty over the items.
func TotalWeight(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Quote.Weight.Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total
}

// Source is the store surface the aggregator reads. Version keys the memo:
// cached totals are invalidated by any committed mutation.
type Source interface {
	Items() []model.CartItem
	SavedItems() []model.CartItem
	SelectedItems() []model.CartItem
	Version() uint64
}

// Converter is the external currency-conversion collaborator. Only the
// display layer uses it; identity checks belong to the guard.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Analytics is a read-only summary for dashboards and logging.
type Analytics struct {
	ItemCount        int
	SavedCount       int
	SelectedCount    int
	UnitCount        int64
	TotalsByCurrency map[string]decimal.Decimal
	Weight           decimal.Decimal
}

type memo struct {
	version        uint64
	cartTotals     map[string]decimal.Decimal
	selectedTotals map[string]decimal.Decimal
	weight         decimal.Decimal
	analytics      Analytics
}

// Aggregator memoizes derived totals keyed on the store version.
type Aggregator struct {
	src  Source
	conv Converter

	mu   sync.Mutex
	memo *memo

	sfg singleflight.Group
}

// New constructs an Aggregator. conv may be nil if display-currency
// conversion is not needed.
func New(src Source, conv Converter) *Aggregator {
	return &Aggregator{src: src, conv: conv}
}

// CartTotal returns per-currency totals over cart items only (saved items
// are never included).
func (a *Aggregator) CartTotal() map[string]decimal.Decimal {
	return copyTotals(a.compute().cartTotals)
}

// SelectedTotal returns per-currency totals over the selection set.
func (a *Aggregator) SelectedTotal() map[string]decimal.Decimal {
	return copyTotals(a.compute().selectedTotals)
}

// CartWeight returns the summed chargeable weight of cart items.
func (a *Aggregator) CartWeight() decimal.Decimal {
	return a.compute().weight
}

// Analytics returns counts and totals for the current state.
func (a *Aggregator) Analytics() Analytics {
	an := a.compute().analytics
	an.TotalsByCurrency = copyTotals(an.TotalsByCurrency)
	return an
}

// compute refreshes the memo if the store version moved. The memo can never
// outlive a mutation: Version is read first and any commit bumps it.
func (a *Aggregator) compute() *memo {
	a.mu.Lock()
	defer a.mu.Unlock()

	ver := a.src.Version()
	if a.memo != nil && a.memo.version == ver {
		return a.memo
	}

	items := a.src.Items()
	saved := a.src.SavedItems()
	selected := a.src.SelectedItems()

	m := &memo{
		version:        ver,
		cartTotals:     TotalsByCurrency(items),
		selectedTotals: TotalsByCurrency(selected),
		weight:         TotalWeight(items),
	}
	var units int64
	for _, it := range items {
		units += it.Quantity
	}
	m.analytics = Analytics{
		ItemCount:        len(items),
		SavedCount:       len(saved),
		SelectedCount:    len(selected),
		UnitCount:        units,
		TotalsByCurrency: m.cartTotals,
		Weight:           m.weight,
	}
	a.memo = m
	return m
}

// DisplayTotal converts the cart total into a single display currency.
// Layered on top of the synchronous per-currency totals; concurrent calls
// for the same currency and store version share one conversion pass.
func (a *Aggregator) DisplayTotal(ctx context.Context, currency string) (decimal.Decimal, error) {
	if a.conv == nil {
		return decimal.Zero, fmt.Errorf("no currency converter configured")
	}

	key := fmt.Sprintf("%s@%d", currency, a.src.Version())
	v, err, _ := a.sfg.Do(key, func() (any, error) {
		totals := a.CartTotal()
		sum := decimal.Zero
		for cur, amount := range totals {
			if cur == currency {
				sum = sum.Add(amount)
				continue
			}
			converted, cerr := a.conv.Convert(ctx, amount, cur, currency)
			if cerr != nil {
				return decimal.Zero, fmt.Errorf("convert %s to %s: %w", cur, currency, cerr)
			}
			sum = sum.Add(converted)
		}
		return sum, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func copyTotals(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
