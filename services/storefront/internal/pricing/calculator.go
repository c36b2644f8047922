// Package pricing derives the display totals of a cart from its line items.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// Default rates.
var (
	DefaultTaxRate     = decimal.RequireFromString("0.18")
	DefaultShippingFee = decimal.NewFromInt(15)
)

// Calculator computes subtotal, tax, shipping and grand total. It holds no
// state beyond its rates and is safe for concurrent use.
type Calculator struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

// Default returns a calculator with an 18% tax rate and a flat 15 shipping fee.
func Default() Calculator {
	return Calculator{TaxRate: DefaultTaxRate, ShippingFee: DefaultShippingFee}
}

// Breakdown holds exact, unrounded amounts.
type Breakdown struct {
	Subtotal   money.Amount `json:"subtotal"`
	Tax        money.Amount `json:"tax"`
	Shipping   money.Amount `json:"shipping"`
	GrandTotal money.Amount `json:"grand_total"`
}

// Display is a Breakdown rounded to two places for presentation.
type Display struct {
	Subtotal   string `json:"subtotal"`
	Tax        string `json:"tax"`
	Shipping   string `json:"shipping"`
	GrandTotal string `json:"grand_total"`
}

// Calculate derives the breakdown of items. Lines with a quantity below 1
// never contribute, and shipping applies only when at least one line does.
func (c Calculator) Calculate(items []domain.LineItem) Breakdown {
	subtotal := decimal.Zero
	priced := 0
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		subtotal = subtotal.Add(item.LineTotal())
		priced++
	}

	shipping := decimal.Zero
	if priced > 0 {
		shipping = c.ShippingFee
	}
	tax := subtotal.Mul(c.TaxRate)

	return Breakdown{
		Subtotal:   money.New(subtotal),
		Tax:        money.New(tax),
		Shipping:   money.New(shipping),
		GrandTotal: money.New(subtotal.Add(tax).Add(shipping)),
	}
}

// Display rounds every amount half away from zero to two places.
func (b Breakdown) Display() Display {
	return Display{
		Subtotal:   money.Display(b.Subtotal.Decimal),
		Tax:        money.Display(b.Tax.Decimal),
		Shipping:   money.Display(b.Shipping.Decimal),
		GrandTotal: money.Display(b.GrandTotal.Decimal),
	}
}
