// Package product defines the catalog model for the shop.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrVariantNotFound is returned when a product has no variant with the
// requested ID.
var ErrVariantNotFound = errors.New("product variant not found")

// Variant is a purchasable option of a product (for example a 500g or
// 1kg package) with its own absolute price.
type Variant struct {
	ID    string
	Label string
	Price decimal.Decimal
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageRef    string
	Variants    []Variant

	// Badges shown on the storefront.
	Promo      bool
	Veggie     bool
	GlutenFree bool

	UnitsPerPackage int
	ServesPeople    int
}

// Offer resolves the cart-facing display name and unit price for the
// given variant. An empty variantID selects the base product; otherwise
// the variant's label is appended to the name and its price replaces
// the base price.
func (p Product) Offer(variantID string) (displayName string, unitPrice decimal.Decimal, err error) {
	if variantID == "" {
		return p.Name, p.Price, nil
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return p.Name + " (" + v.Label + ")", v.Price, nil
		}
	}
	return "", decimal.Zero, ErrVariantNotFound
}

// Repository defines catalog persistence. Reads serve the storefront;
// writes serve the admin panel.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
