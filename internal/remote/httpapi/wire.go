package httpapi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/cartsync/internal/model"
	"github.com/and161185/cartsync/internal/remote"
)

// Wire shapes of the JSON sync API. Conversion lives here so the rest of
// the module never sees transport field names.

type wireItem struct {
	ID                 string            `json:"id"`
	DisplayID          string            `json:"display_id,omitempty"`
	Price              decimal.Decimal   `json:"price"`
	Currency           string            `json:"currency"`
	OriginCountry      string            `json:"origin_country"`
	DestinationCountry string            `json:"destination_country,omitempty"`
	Weight             decimal.Decimal   `json:"weight"`
	Quantity           int64             `json:"quantity"`
	AddedAt            time.Time         `json:"added_at"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Saved              bool              `json:"saved,omitempty"`
}

type mutationBody struct {
	Op       string    `json:"op"`
	ItemID   string    `json:"item_id"`
	Seq      int64     `json:"seq"`
	Quantity int64     `json:"quantity,omitempty"`
	ToSaved  bool      `json:"to_saved,omitempty"`
	Item     *wireItem `json:"item,omitempty"`
}

type ackResponse struct {
	Seq int64 `json:"seq"`
}

type stateBody struct {
	Items []wireItem `json:"items"`
}

type wireEvent struct {
	Type   string    `json:"type"`
	ItemID string    `json:"item_id,omitempty"`
	At     time.Time `json:"at"`
}

type eventsBody struct {
	Events []wireEvent `json:"events"`
}

func toWireItem(it model.CartItem, saved bool) wireItem {
	return wireItem{
		ID:                 it.Quote.ID,
		DisplayID:          it.Quote.DisplayID,
		Price:              it.Quote.Price,
		Currency:           it.Quote.Currency,
		OriginCountry:      it.Quote.OriginCountry,
		DestinationCountry: it.Quote.DestinationCountry,
		Weight:             it.Quote.Weight,
		Quantity:           it.Quantity,
		AddedAt:            it.AddedAt,
		Metadata:           it.Metadata,
		Saved:              saved,
	}
}

func fromWireItem(w wireItem) (model.CartItem, error) {
	if w.ID == "" {
		return model.CartItem{}, fmt.Errorf("item without id")
	}
	if w.Quantity < 1 {
		return model.CartItem{}, fmt.Errorf("item %s: quantity %d", w.ID, w.Quantity)
	}
	return model.CartItem{
		Quote: model.QuoteSnapshot{
			ID:                 w.ID,
			DisplayID:          w.DisplayID,
			Price:              w.Price,
			Currency:           w.Currency,
			OriginCountry:      w.OriginCountry,
			DestinationCountry: w.DestinationCountry,
			Weight:             w.Weight,
		},
		Quantity: w.Quantity,
		AddedAt:  w.AddedAt,
		Metadata: w.Metadata,
	}, nil
}

func toWireMutation(m remote.Mutation) mutationBody {
	body := mutationBody{
		Op:       string(m.Op),
		ItemID:   m.ItemID,
		Seq:      m.Seq,
		Quantity: m.Quantity,
		ToSaved:  m.ToSaved,
	}
	if m.Item != nil {
		w := toWireItem(*m.Item, false)
		body.Item = &w
	}
	return body
}

func toWireState(st remote.State) stateBody {
	body := stateBody{Items: make([]wireItem, 0, len(st.Lines))}
	for _, ln := range st.Lines {
		body.Items = append(body.Items, toWireItem(ln.Item, ln.Saved))
	}
	return body
}

func fromWireState(body stateBody) (remote.State, error) {
	st := remote.State{Lines: make([]remote.Line, 0, len(body.Items))}
	for i, w := range body.Items {
		it, err := fromWireItem(w)
		if err != nil {
			return remote.State{}, fmt.Errorf("httpapi: state item[%d]: %w", i, err)
		}
		st.Lines = append(st.Lines, remote.Line{Item: it, Saved: w.Saved})
	}
	return st, nil
}
