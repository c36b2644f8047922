package repository

import (
	"context"

	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves a cart by its user ID. A missing cart is ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveIfVersion stores cart only if the stored version still equals
	// expectedVersion (0 meaning "no cart stored"). On success cart.Version is
	// expectedVersion+1. It reports false when another writer got there first.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes a cart from the store by the user ID.
	Delete(ctx context.Context, userID string) error
}

// ProductCatalog looks up the products a cart line snapshots.
type ProductCatalog interface {
	// GetProduct returns the product or ErrNotFound.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}
