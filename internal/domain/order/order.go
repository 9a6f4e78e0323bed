// Package order models customer orders and the checkout flow, which
// hands payment coordination off to a WhatsApp conversation instead of
// an in-process payment provider.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status tracks an order through its lifecycle. Transitions are driven
// by the admin panel after the WhatsApp conversation.
type Status string

const (
	// StatusPending is the initial state after checkout submission.
	StatusPending Status = "pending"
	// StatusConfirmed means the shop accepted the order over WhatsApp.
	StatusConfirmed Status = "confirmed"
	// StatusDelivered means the order was handed to the customer.
	StatusDelivered Status = "delivered"
	// StatusCancelled means the order will not be fulfilled.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// DeliveryMethod selects how the customer receives the order.
type DeliveryMethod string

const (
	// DeliveryHome ships the order to the customer's address.
	DeliveryHome DeliveryMethod = "delivery"
	// DeliveryPickup means the customer collects at the shop.
	DeliveryPickup DeliveryMethod = "pickup"
)

// Item is a snapshot of one cart line at checkout time. Prices are the
// cart's add-time snapshots, never re-fetched from the catalog.
type Item struct {
	LineID      string
	DisplayName string
	UnitPrice   decimal.Decimal
	Quantity    int
	ImageRef    string
}

// Subtotal returns Quantity x UnitPrice for this item.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Customer holds the contact and delivery details from the checkout form.
type Customer struct {
	Name          string
	Phone         string
	Delivery      DeliveryMethod
	Address       string
	City          string
	PaymentMethod string
	Note          string
}

// Order represents a submitted order. UserID is empty for guest checkouts.
type Order struct {
	ID        string
	UserID    string
	Items     []Item
	Total     decimal.Decimal
	Customer  Customer
	Status    Status
	CreatedAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
