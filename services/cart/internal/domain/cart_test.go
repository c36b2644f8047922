package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/utafrali/storefront/pkg/money"
)

func price(s string) money.Amount {
	return money.New(decimal.RequireFromString(s))
}

func sampleCart() *Cart {
	return &Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items: []CartItem{
			{ID: "L1", ProductID: "P1", Name: "Mug", UnitPrice: price("89.99"), Quantity: 1},
			{ID: "L2", ProductID: "P2", Name: "Tee", UnitPrice: price("0.10"), Quantity: 3},
		},
	}
}

func TestTotal_IsExactDecimal(t *testing.T) {
	cart := sampleCart()
	assert.Equal(t, "90.29", cart.Total().String())
}

func TestTotal_EmptyCart(t *testing.T) {
	cart := &Cart{}
	assert.True(t, cart.Total().IsZero())
	assert.Equal(t, 0, cart.ItemCount())
}

func TestTotal_RepeatedCentsDoNotDrift(t *testing.T) {
	cart := &Cart{}
	for i := 0; i < 10; i++ {
		cart.Items = append(cart.Items, CartItem{UnitPrice: price("0.1"), Quantity: 1})
	}
	assert.True(t, cart.Total().Equal(decimal.NewFromInt(1)))
}

func TestItemCount(t *testing.T) {
	assert.Equal(t, 4, sampleCart().ItemCount())
}

func TestFindItemIndex(t *testing.T) {
	cart := sampleCart()
	assert.Equal(t, 1, cart.FindItemIndex("L2"))
	assert.Equal(t, -1, cart.FindItemIndex("missing"))
}

func TestFindProductIndex(t *testing.T) {
	cart := sampleCart()
	assert.Equal(t, 0, cart.FindProductIndex("P1"))
	assert.Equal(t, -1, cart.FindProductIndex("P9"))
}

func TestRemoveItemAt_KeepsOrder(t *testing.T) {
	cart := sampleCart()
	cart.Items = append(cart.Items, CartItem{ID: "L3"})

	cart.RemoveItemAt(1)

	assert.Equal(t, []string{"L1", "L3"}, []string{cart.Items[0].ID, cart.Items[1].ID})
}

func TestTouch_SlidesExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cart := sampleCart()

	cart.Touch(now, time.Hour)

	assert.Equal(t, now, cart.UpdatedAt)
	assert.Equal(t, now.Add(time.Hour), cart.ExpiresAt)
}
