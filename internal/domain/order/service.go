package order

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pastavicenzo/storefront/internal/domain/cart"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart       = fmt.Errorf("cart is empty")
	ErrMissingContact  = fmt.Errorf("customer name and phone are required")
	ErrMissingAddress  = fmt.Errorf("delivery address is required")
	ErrInvalidQuantity = fmt.Errorf("quantity must be greater than 0")
)

// CheckoutRequest holds the input for submitting an order: the current
// cart lines plus the checkout form fields.
type CheckoutRequest struct {
	Lines    []cart.Line
	Customer Customer
	UserID   string
}

// CheckoutResult holds the persisted order and the WhatsApp handoff URL
// the customer is redirected to for payment coordination.
type CheckoutResult struct {
	Order      *Order
	HandoffURL string
}

// ServiceConfig holds the shop identity used in the handoff message.
type ServiceConfig struct {
	// ShopName appears in the WhatsApp message header.
	ShopName string
	// WhatsAppNumber is the shop's number in international format
	// without the leading plus, e.g. "5491123456789".
	WhatsAppNumber string
}

// Service encapsulates checkout business logic.
type Service struct {
	orders Repository
	cfg    ServiceConfig
	newID  func() string
	now    func() time.Time
}

// NewService creates an order Service persisting through the given
// repository.
func NewService(orders Repository, cfg ServiceConfig) *Service {
	return &Service{
		orders: orders,
		cfg:    cfg,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// Checkout validates the cart and form, persists the order in the
// pending state, and builds the WhatsApp handoff URL. It does not touch
// the cart itself; the caller clears the cart engine only after the
// order is durably stored.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(req.Customer.Name) == "" || strings.TrimSpace(req.Customer.Phone) == "" {
		return nil, ErrMissingContact
	}
	if req.Customer.Delivery == "" {
		req.Customer.Delivery = DeliveryPickup
	}
	if req.Customer.Delivery == DeliveryHome && strings.TrimSpace(req.Customer.Address) == "" {
		return nil, ErrMissingAddress
	}

	items := make([]Item, len(req.Lines))
	total := decimal.Zero
	for i, l := range req.Lines {
		if l.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		items[i] = Item{
			LineID:      l.ID,
			DisplayName: l.DisplayName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			ImageRef:    l.ImageRef,
		}
		total = total.Add(l.Subtotal())
	}

	o := &Order{
		ID:        s.newID(),
		UserID:    req.UserID,
		Items:     items,
		Total:     total,
		Customer:  req.Customer,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return &CheckoutResult{
		Order:      o,
		HandoffURL: s.handoffURL(o),
	}, nil
}

// handoffURL renders the order as a prefilled WhatsApp message. The
// message mirrors the checkout summary the shop staff expect to receive.
func (s *Service) handoffURL(o *Order) string {
	if s.cfg.WhatsAppNumber == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Nuevo Pedido - %s*\n\n", s.cfg.ShopName)
	fmt.Fprintf(&b, "*Cliente:* %s\n", o.Customer.Name)
	fmt.Fprintf(&b, "*Teléfono:* %s\n", o.Customer.Phone)
	if o.Customer.Delivery == DeliveryHome {
		fmt.Fprintf(&b, "*Método de Entrega:* Envío a domicilio\n")
		fmt.Fprintf(&b, "*Dirección:* %s, %s\n", o.Customer.Address, o.Customer.City)
	} else {
		fmt.Fprintf(&b, "*Método de Entrega:* Retiro por local\n")
	}
	if o.Customer.PaymentMethod != "" {
		fmt.Fprintf(&b, "*Pago:* %s\n", o.Customer.PaymentMethod)
	}
	fmt.Fprintf(&b, "\n*Pedido:*\n")
	for _, item := range o.Items {
		fmt.Fprintf(&b, "- %dx %s ($%s)\n", item.Quantity, item.DisplayName, item.Subtotal())
	}
	fmt.Fprintf(&b, "\n*Total: $%s*", o.Total)

	return "https://wa.me/" + s.cfg.WhatsAppNumber + "?text=" + url.QueryEscape(b.String())
}
