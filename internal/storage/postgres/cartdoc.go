package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/domain/cart"
)

const (
	getCartDocSQL = `SELECT doc, updated_at FROM cart_documents WHERE user_id = $1`

	setCartDocSQL = `INSERT INTO cart_documents (user_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`
)

var _ cartsync.RemoteStore = (*CartRepository)(nil)

// CartRepository holds the per-user remote cart documents in a JSONB
// column, one row per user. The document body is the same snapshot
// encoding used by the device-local store.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart document, or (nil, nil) when none exists.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cartsync.RemoteDocument, error) {
	var doc cartsync.RemoteDocument
	var blob []byte
	err := r.pool.QueryRow(ctx, getCartDocSQL, userID).Scan(&blob, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cart document for user %q: %w", userID, err)
	}

	c, err := cart.DecodeSnapshot(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding cart document for user %q: %w", userID, err)
	}
	doc.Lines = c.Lines()
	return &doc, nil
}

// Set replaces the user's cart document.
func (r *CartRepository) Set(ctx context.Context, userID string, doc cartsync.RemoteDocument) error {
	blob := cart.EncodeSnapshot(cart.New(doc.Lines))
	_, err := r.pool.Exec(ctx, setCartDocSQL, userID, blob, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("setting cart document for user %q: %w", userID, err)
	}
	return nil
}
