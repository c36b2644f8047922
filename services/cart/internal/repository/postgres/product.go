package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// ProductRepository implements repository.ProductCatalog over the
// catalog_products table.
type ProductRepository struct {
	pool   database.DBTX
	tracer *database.QueryTracer
}

// NewProductRepository creates a new PostgreSQL-backed product catalog.
// tracer may be nil.
func NewProductRepository(pool database.DBTX, tracer *database.QueryTracer) *ProductRepository {
	return &ProductRepository{pool: pool, tracer: tracer}
}

// GetProduct retrieves an active product by id. Inactive products are
// reported as not found so they cannot be added to a cart.
func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (p *domain.Product, err error) {
	// Price is read as text so it reaches decimal without a float64 hop.
	query := `
		SELECT id, name, price::text, image_url, active
		FROM catalog_products
		WHERE id = $1`

	ctx, end := r.tracer.Trace(ctx, "GetProduct", query)
	defer func() { end(err) }()

	var (
		product domain.Product
		price   string
	)
	err = r.pool.QueryRow(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&price,
		&product.ImageURL,
		&product.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("query product: %w", err)
	}

	product.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price of product %s: %w", productID, err)
	}
	if !product.Active {
		return nil, apperrors.NotFound("product", productID)
	}

	return &product, nil
}

// Upsert inserts or updates a product. Used by the seed command.
func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO catalog_products (id, name, price, image_url, active)
		VALUES ($1, $2, $3::numeric, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    image_url = EXCLUDED.image_url,
		    active = EXCLUDED.active,
		    updated_at = NOW()`

	ctx, end := r.tracer.Trace(ctx, "UpsertProduct", query)
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, query, p.ID, p.Name, p.Price.String(), p.ImageURL, p.Active); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
