// Package snapshot keeps a copy of each session's cart line items so a
// returning shopper sees their cart before the first fetch completes. Only
// items are stored; totals are always taken from the cart service.
package snapshot

import (
	"context"
	"time"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// Store persists line items per session. Load returns nil items and no error
// when the session has nothing stored.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	Save(ctx context.Context, sessionID string, items []domain.LineItem) error
}

// document is the stored form of a snapshot.
type document struct {
	Items   []domain.LineItem `json:"items"`
	SavedAt time.Time         `json:"saved_at"`
}

// Binding ties a Store to one session.
type Binding struct {
	store     Store
	sessionID string
}

// Bind returns the persister of sessionID.
func Bind(store Store, sessionID string) *Binding {
	return &Binding{store: store, sessionID: sessionID}
}

// Load reads the session's items.
func (b *Binding) Load(ctx context.Context) ([]domain.LineItem, error) {
	return b.store.Load(ctx, b.sessionID)
}

// Save replaces the session's items.
func (b *Binding) Save(ctx context.Context, items []domain.LineItem) error {
	return b.store.Save(ctx, b.sessionID, items)
}
