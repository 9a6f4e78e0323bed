package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pastavicenzo/storefront/internal/domain/order"
)

type customerJSON struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Delivery      string `json:"deliveryMethod"`
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	Note          string `json:"note,omitempty"`
}

type orderItemJSON struct {
	LineID      string          `json:"lineId"`
	DisplayName string          `json:"displayName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	ImageRef    string          `json:"imageRef,omitempty"`
}

type orderJSON struct {
	ID        string          `json:"id"`
	Items     []orderItemJSON `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Customer  customerJSON    `json:"customer"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

type checkoutResponse struct {
	Order      orderJSON `json:"order"`
	HandoffURL string    `json:"whatsappUrl,omitempty"`
}

func toOrderJSON(o order.Order) orderJSON {
	out := orderJSON{
		ID:    o.ID,
		Items: make([]orderItemJSON, len(o.Items)),
		Total: o.Total,
		Customer: customerJSON{
			Name:          o.Customer.Name,
			Phone:         o.Customer.Phone,
			Delivery:      string(o.Customer.Delivery),
			Address:       o.Customer.Address,
			City:          o.Customer.City,
			PaymentMethod: o.Customer.PaymentMethod,
			Note:          o.Customer.Note,
		},
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
	for i, it := range o.Items {
		out.Items[i] = orderItemJSON{
			LineID:      it.LineID,
			DisplayName: it.DisplayName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			ImageRef:    it.ImageRef,
		}
	}
	return out
}

// checkout submits the session's cart as an order. The cart engine is
// cleared only after the order is durably stored; the clear bypasses
// the debounce so both persisted copies empty immediately.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req customerJSON
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := h.session(r)
	userID := ""
	if user := sess.User(); user != nil {
		userID = user.UserID
	}

	result, err := h.orderService.Checkout(r.Context(), order.CheckoutRequest{
		Lines: sess.Engine.Lines(),
		Customer: order.Customer{
			Name:          req.Name,
			Phone:         req.Phone,
			Delivery:      order.DeliveryMethod(req.Delivery),
			Address:       req.Address,
			City:          req.City,
			PaymentMethod: req.PaymentMethod,
			Note:          req.Note,
		},
		UserID: userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrEmptyCart),
			errors.Is(err, order.ErrMissingContact),
			errors.Is(err, order.ErrMissingAddress),
			errors.Is(err, order.ErrInvalidQuantity):
			h.respondError(w, r, http.StatusBadRequest, err.Error())
		default:
			h.internalError(w, r, err)
		}
		return
	}

	sess.Engine.CompleteCheckout(r.Context())

	h.respondJSON(w, r, http.StatusCreated, checkoutResponse{
		Order:      toOrderJSON(*result.Order),
		HandoffURL: result.HandoffURL,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	user := h.session(r).User()
	if user == nil {
		h.respondError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), user.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = toOrderJSON(o)
	}
	h.respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	user := h.session(r).User()
	if user == nil {
		h.respondError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "order not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	if o.UserID != user.UserID && !user.Admin {
		h.respondError(w, r, http.StatusNotFound, "order not found")
		return
	}
	h.respondJSON(w, r, http.StatusOK, toOrderJSON(*o))
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i, o := range orders {
		out[i] = toOrderJSON(o)
	}
	h.respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	status := order.Status(req.Status)
	if !status.Valid() {
		h.respondError(w, r, http.StatusUnprocessableEntity, "unknown order status")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.orders.UpdateStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "order not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toOrderJSON(*o))
}
