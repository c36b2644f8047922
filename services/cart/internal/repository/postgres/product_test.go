package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

func newTestRepo(t *testing.T) (*ProductRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewProductRepository(mock, nil), mock
}

func productRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "price", "image_url", "active"})
}

func TestProductRepository_GetProduct_Success(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT id, name, price::text").
		WithArgs("P1").
		WillReturnRows(productRows().AddRow("P1", "Espresso Cup", "89.99", "https://img/cup.jpg", true))

	p, err := repo.GetProduct(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "Espresso Cup", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("89.99")))
	assert.Equal(t, "https://img/cup.jpg", p.ImageURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetProduct_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT id, name").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetProduct_InactiveIsNotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT id, name").
		WithArgs("P2").
		WillReturnRows(productRows().AddRow("P2", "Retired", "10.00", "", false))

	_, err := repo.GetProduct(context.Background(), "P2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProductRepository_GetProduct_QueryError(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT id, name").
		WithArgs("P1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetProduct(context.Background(), "P1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "query product")
}

func TestProductRepository_Upsert(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("INSERT INTO catalog_products").
		WithArgs("P1", "Espresso Cup", "89.99", "", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Upsert(context.Background(), &domain.Product{
		ID: "P1", Name: "Espresso Cup", Price: decimal.RequireFromString("89.99"), Active: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
