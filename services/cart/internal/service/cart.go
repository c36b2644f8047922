package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository"
)

// Limits bounds what a single cart may hold.
type Limits struct {
	MaxQuantityPerLine int
	MaxLinesPerCart    int
}

// DefaultLimits matches the storefront quantity picker.
func DefaultLimits() Limits {
	return Limits{MaxQuantityPerLine: 99, MaxLinesPerCart: 50}
}

// AddItemInput holds the parameters for adding an item to the cart.
type AddItemInput struct {
	ProductID string
	Quantity  int
}

// EventPublisher emits cart domain events. Failures never fail a request.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, userID string) error
}

// CartService implements the business logic for cart operations.
type CartService struct {
	repo     repository.CartRepository
	catalog  repository.ProductCatalog
	events   EventPublisher
	logger   *slog.Logger
	cartTTL  time.Duration
	limits   Limits
	currency string
	now      func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(
	repo repository.CartRepository,
	catalog repository.ProductCatalog,
	events EventPublisher,
	logger *slog.Logger,
	cartTTL time.Duration,
	limits Limits,
	currency string,
) *CartService {
	return &CartService{
		repo:     repo,
		catalog:  catalog,
		events:   events,
		logger:   logger,
		cartTTL:  cartTTL,
		limits:   limits,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	return s.getOrCreateCart(ctx, userID)
}

// AddItem snapshots the product from the catalog and adds it to the cart. A
// product already in the cart has its quantity increased instead of getting
// a second line; the original price snapshot is kept.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if err := s.checkQuantity(input.Quantity); err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("look up product: %w", err)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	expectedVersion := cart.Version
	now := s.now()

	if i := cart.FindProductIndex(input.ProductID); i >= 0 {
		newQty := cart.Items[i].Quantity + input.Quantity
		if newQty > s.limits.MaxQuantityPerLine {
			return nil, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", s.limits.MaxQuantityPerLine))
		}
		cart.Items[i].Quantity = newQty
	} else {
		if len(cart.Items) >= s.limits.MaxLinesPerCart {
			return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", s.limits.MaxLinesPerCart))
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        uuid.NewString(),
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: money.New(product.Price),
			ImageURL:  product.ImageURL,
			Quantity:  input.Quantity,
			AddedAt:   now,
		})
	}

	if err := s.save(ctx, cart, expectedVersion, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
	)

	return cart, nil
}

// UpdateItemQuantity sets the quantity of a line. Quantities below 1 are
// rejected: removal goes through RemoveItem.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, lineItemID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if lineItemID == "" {
		return nil, apperrors.InvalidInput("line item id is required")
	}
	if err := s.checkQuantity(quantity); err != nil {
		return nil, err
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("cart item", lineItemID)
		}
		return nil, fmt.Errorf("get cart for update: %w", err)
	}
	expectedVersion := cart.Version

	i := cart.FindItemIndex(lineItemID)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", lineItemID)
	}
	cart.Items[i].Quantity = quantity

	if err := s.save(ctx, cart, expectedVersion, s.now()); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("user_id", userID),
		slog.String("line_item_id", lineItemID),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes a line from the cart. An unknown line is ErrNotFound;
// callers that want idempotent removal treat that as success.
func (s *CartService) RemoveItem(ctx context.Context, userID, lineItemID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if lineItemID == "" {
		return nil, apperrors.InvalidInput("line item id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("cart item", lineItemID)
		}
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}
	expectedVersion := cart.Version

	i := cart.FindItemIndex(lineItemID)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", lineItemID)
	}
	cart.RemoveItemAt(i)

	if err := s.save(ctx, cart, expectedVersion, s.now()); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("line_item_id", lineItemID),
	)

	return cart, nil
}

// ClearCart removes all items from the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if err := s.events.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

func (s *CartService) checkQuantity(quantity int) error {
	if quantity < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}
	if quantity > s.limits.MaxQuantityPerLine {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", s.limits.MaxQuantityPerLine))
	}
	return nil
}

// save stores cart with optimistic locking and publishes cart.updated.
func (s *CartService) save(ctx context.Context, cart *domain.Cart, expectedVersion int, now time.Time) error {
	cart.Touch(now, s.cartTTL)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}

	if err := s.events.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// getOrCreateCart retrieves the cart for a user, creating an empty one if it does not exist.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// newEmptyCart creates a new empty cart for the given user.
func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	now := s.now()
	return &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		Currency:  s.currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}
