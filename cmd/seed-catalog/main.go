// Command seed-catalog loads the product catalog from a JSON file into
// the database. Existing products with the same ID are updated in place,
// so the command is safe to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pastavicenzo/storefront/internal/domain/product"
	"github.com/pastavicenzo/storefront/internal/storage/postgres"
)

type variantJSON struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

type productJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Category        string          `json:"category"`
	Image           string          `json:"image"`
	Variants        []variantJSON   `json:"variants"`
	Promo           bool            `json:"isPromo"`
	Veggie          bool            `json:"isVeggie"`
	GlutenFree      bool            `json:"isGlutenFree"`
	UnitsPerPackage int             `json:"unitsPerPackage"`
	ServesPeople    int             `json:"servesPeople"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	repo := postgres.NewProductRepository(pool)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pj := range products {
		g.Go(func() error {
			p := toDomain(pj)
			if err := repo.Update(ctx, &p); err != nil {
				if !errors.Is(err, product.ErrNotFound) {
					return errors.Wrapf(err, "update product %q", p.ID)
				}
				if err := repo.Create(ctx, &p); err != nil {
					return errors.Wrapf(err, "create product %q", p.ID)
				}
			}
			slog.Info("seeded product", slog.String("id", p.ID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("seeded products", slog.Int("count", len(products)))
	return nil
}

func toDomain(pj productJSON) product.Product {
	p := product.Product{
		ID:              pj.ID,
		Name:            pj.Name,
		Description:     pj.Description,
		Price:           pj.Price,
		Category:        pj.Category,
		ImageRef:        pj.Image,
		Promo:           pj.Promo,
		Veggie:          pj.Veggie,
		GlutenFree:      pj.GlutenFree,
		UnitsPerPackage: pj.UnitsPerPackage,
		ServesPeople:    pj.ServesPeople,
	}
	for _, v := range pj.Variants {
		p.Variants = append(p.Variants, product.Variant{ID: v.ID, Label: v.Label, Price: v.Price})
	}
	return p
}
