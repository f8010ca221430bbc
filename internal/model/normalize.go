package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/and161185/cartsync/internal/errs"
)

// Quote payloads arrive in two shapes: the current API
// (price/customer_currency/origin_country) and the legacy one
// (total_amount/final_currency/from_country). NormalizeQuoteSnapshot
// resolves either into the canonical QuoteSnapshot exactly once, at
// ingestion; nothing downstream branches on shape.
func NormalizeQuoteSnapshot(raw map[string]any) (QuoteSnapshot, error) {
	if len(raw) == 0 {
		return QuoteSnapshot{}, fmt.Errorf("%w: empty quote payload", errs.ErrValidation)
	}

	id := firstString(raw, "id", "quote_id")
	if id == "" {
		return QuoteSnapshot{}, fmt.Errorf("%w: quote id missing", errs.ErrValidation)
	}

	price, ok, err := firstDecimal(raw, "price", "total_amount", "final_total")
	if err != nil {
		return QuoteSnapshot{}, fmt.Errorf("%w: quote %s: %v", errs.ErrValidation, id, err)
	}
	if !ok {
		return QuoteSnapshot{}, fmt.Errorf("%w: quote %s: price missing", errs.ErrValidation, id)
	}

	weight, _, err := firstDecimal(raw, "weight", "chargeable_weight")
	if err != nil {
		return QuoteSnapshot{}, fmt.Errorf("%w: quote %s: %v", errs.ErrValidation, id, err)
	}

	return QuoteSnapshot{
		ID:                 id,
		DisplayID:          firstString(raw, "display_id", "quote_number"),
		Price:              price,
		Currency:           strings.ToUpper(firstString(raw, "customer_currency", "final_currency", "currency")),
		OriginCountry:      strings.ToUpper(firstString(raw, "origin_country", "from_country")),
		DestinationCountry: strings.ToUpper(firstString(raw, "destination_country", "to_country")),
		Weight:             weight,
	}, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstDecimal(raw map[string]any, keys ...string) (decimal.Decimal, bool, error) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(t))
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("field %s: %v", k, err)
			}
			return d, true, nil
		case float64:
			return decimal.NewFromFloat(t), true, nil
		case int:
			return decimal.NewFromInt(int64(t)), true, nil
		case int64:
			return decimal.NewFromInt(t), true, nil
		case json.Number:
			d, err := decimal.NewFromString(t.String())
			if err != nil {
				return decimal.Zero, false, fmt.Errorf("field %s: %v", k, err)
			}
			return d, true, nil
		case decimal.Decimal:
			return t, true, nil
		default:
			return decimal.Zero, false, fmt.Errorf("field %s: unsupported type %T", k, v)
		}
	}
	return decimal.Zero, false, nil
}
