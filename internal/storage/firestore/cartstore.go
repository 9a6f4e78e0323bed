package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/domain/cart"
)

var _ cartsync.RemoteStore = (*CartStore)(nil)

// CartStore holds one cart document per user at users/{uid}/cart/active.
type CartStore struct {
	client *firestore.Client
}

// NewCartStore returns a CartStore backed by the given client.
func NewCartStore(client *firestore.Client) *CartStore {
	return &CartStore{client: client}
}

type cartDoc struct {
	Items     []cartItem `firestore:"items"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

type cartItem struct {
	LineID      string  `firestore:"lineId"`
	DisplayName string  `firestore:"displayName"`
	UnitPrice   float64 `firestore:"unitPrice"`
	Quantity    int     `firestore:"quantity"`
	ImageRef    string  `firestore:"imageRef,omitempty"`
}

func (s *CartStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID).Collection("cart").Doc("active")
}

// Get returns the user's cart document, or (nil, nil) when none exists.
func (s *CartStore) Get(ctx context.Context, userID string) (*cartsync.RemoteDocument, error) {
	snap, err := s.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cart document for user %q: %w", userID, err)
	}

	var d cartDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding cart document for user %q: %w", userID, err)
	}

	doc := &cartsync.RemoteDocument{UpdatedAt: d.UpdatedAt}
	for _, it := range d.Items {
		doc.Lines = append(doc.Lines, cart.Line{
			ID:          it.LineID,
			DisplayName: it.DisplayName,
			UnitPrice:   decimal.NewFromFloat(it.UnitPrice),
			Quantity:    it.Quantity,
			ImageRef:    it.ImageRef,
		})
	}
	return doc, nil
}

// Set replaces the user's cart document.
func (s *CartStore) Set(ctx context.Context, userID string, doc cartsync.RemoteDocument) error {
	d := cartDoc{
		Items:     make([]cartItem, len(doc.Lines)),
		UpdatedAt: doc.UpdatedAt,
	}
	for i, l := range doc.Lines {
		d.Items[i] = cartItem{
			LineID:      l.ID,
			DisplayName: l.DisplayName,
			UnitPrice:   l.UnitPrice.InexactFloat64(),
			Quantity:    l.Quantity,
			ImageRef:    l.ImageRef,
		}
	}

	if _, err := s.doc(userID).Set(ctx, d); err != nil {
		return fmt.Errorf("setting cart document for user %q: %w", userID, err)
	}
	return nil
}
