package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pastavicenzo/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, description, price, category, image_ref, variants,
			promo, veggie, gluten_free, units_per_package, serves_people
		FROM products ORDER BY category, name`

	getProductByIDSQL = `SELECT id, name, description, price, category, image_ref, variants,
			promo, veggie, gluten_free, units_per_package, serves_people
		FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products
			(id, name, description, price, category, image_ref, variants,
			 promo, veggie, gluten_free, units_per_package, serves_people)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateProductSQL = `UPDATE products SET
			name = $2, description = $3, price = $4, category = $5, image_ref = $6,
			variants = $7, promo = $8, veggie = $9, gluten_free = $10,
			units_per_package = $11, serves_people = $12, updated_at = NOW()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Variants are serialized into a JSONB column alongside the base row.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the full catalog ordered by category and name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Create inserts a new catalog entry.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	variantsJSON, err := marshalVariants(p.Variants)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.ImageRef, variantsJSON,
		p.Promo, p.Veggie, p.GlutenFree, p.UnitsPerPackage, p.ServesPeople,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update replaces an existing catalog entry in full.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	variantsJSON, err := marshalVariants(p.Variants)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Category, p.ImageRef, variantsJSON,
		p.Promo, p.Veggie, p.GlutenFree, p.UnitsPerPackage, p.ServesPeople,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a catalog entry.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

type variantRow struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

func marshalVariants(vs []product.Variant) ([]byte, error) {
	rows := make([]variantRow, len(vs))
	for i, v := range vs {
		rows[i] = variantRow{ID: v.ID, Label: v.Label, Price: v.Price}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshaling product variants: %w", err)
	}
	return data, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		price    decimal.Decimal
		variants []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &p.Category, &p.ImageRef, &variants,
		&p.Promo, &p.Veggie, &p.GlutenFree, &p.UnitsPerPackage, &p.ServesPeople,
	)
	if err != nil {
		return p, err
	}
	p.Price = price

	var rows []variantRow
	if err := json.Unmarshal(variants, &rows); err != nil {
		return p, fmt.Errorf("unmarshaling variants for product %q: %w", p.ID, err)
	}
	for _, v := range rows {
		p.Variants = append(p.Variants, product.Variant{ID: v.ID, Label: v.Label, Price: v.Price})
	}
	return p, nil
}
