// Command seed loads demo products into the catalog_products table used by
// the postgres catalog backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository/postgres"
	"github.com/utafrali/storefront/services/cart/migrations"
)

type seedConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Postgres database.PostgresConfig
}

var demoProducts = []domain.Product{
	{ID: "P1", Name: "Trail Running Shoe", Price: decimal.RequireFromString("89.99"), ImageURL: "/images/p1.jpg", Active: true},
	{ID: "P2", Name: "Merino Wool Socks", Price: decimal.RequireFromString("12.50"), ImageURL: "/images/p2.jpg", Active: true},
	{ID: "P3", Name: "Insulated Water Bottle", Price: decimal.RequireFromString("24.00"), ImageURL: "/images/p3.jpg", Active: true},
	{ID: "P4", Name: "Packable Rain Jacket", Price: decimal.RequireFromString("129.95"), ImageURL: "/images/p4.jpg", Active: true},
	{ID: "P5", Name: "Discontinued Headlamp", Price: decimal.RequireFromString("39.99"), ImageURL: "/images/p5.jpg", Active: false},
}

func main() {
	var cfg seedConfig
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("cart-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, log)
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo := postgres.NewProductRepository(pool, nil)
	for i := range demoProducts {
		p := &demoProducts[i]
		if err := repo.Upsert(ctx, p); err != nil {
			log.Error("failed to seed product",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	log.Info("catalog seeded", slog.Int("products", len(demoProducts)))
}
