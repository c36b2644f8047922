// Package domain holds the storefront's canonical view of a cart.
package domain

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/pkg/money"
)

// LineItem is one product/quantity pairing. Name, UnitPrice and ImageURL are
// the product snapshot taken by the cart service when the line was added.
type LineItem struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	ImageURL  string       `json:"image_url,omitempty"`
	Quantity  int          `json:"quantity"`
}

// LineTotal returns unit price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the full cart as returned by the cart service. Total is the
// server's figure and is not recomputed.
type Snapshot struct {
	Items []LineItem   `json:"items"`
	Total money.Amount `json:"total"`
}

// EmptySnapshot is an empty cart with a zero total.
func EmptySnapshot() Snapshot {
	return Snapshot{Items: []LineItem{}, Total: money.Zero}
}

// RemoveAck acknowledges a line removal. Snapshot is nil when the service
// answered with the id only.
type RemoveAck struct {
	ID       string
	Snapshot *Snapshot
}

// CloneItems returns a copy of items that never aliases the input and is
// never nil.
func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
