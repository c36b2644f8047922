package domain

import "github.com/shopspring/decimal"

// Product is the catalog view the cart needs to snapshot a line.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageURL string
	Active   bool
}
