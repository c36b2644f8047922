// Package money carries currency amounts over JSON as plain numbers while
// keeping the arithmetic in shopspring/decimal.
package money

import (
	"github.com/shopspring/decimal"
)

// Amount is a decimal currency value. It marshals as a bare JSON number and
// accepts both numbers and numeric strings when decoding.
type Amount struct {
	decimal.Decimal
}

// New wraps d.
func New(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// Zero is the zero amount.
var Zero = Amount{Decimal: decimal.Zero}

// MarshalJSON emits the exact decimal value without quotes.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts 12.5, "12.5" and null (zero).
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(data)
}

// Display rounds half away from zero to two places for presentation.
func Display(d decimal.Decimal) string {
	return d.StringFixed(2)
}
