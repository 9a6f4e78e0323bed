package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/domain/cart"
	"github.com/pastavicenzo/storefront/internal/domain/product"
	"github.com/pastavicenzo/storefront/internal/identity"
)

type cartLineJSON struct {
	LineID      string          `json:"lineId"`
	DisplayName string          `json:"displayName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	ImageRef    string          `json:"imageRef,omitempty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type cartJSON struct {
	Items      []cartLineJSON  `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func toCartJSON(e *cartsync.Engine) cartJSON {
	lines := e.Lines()
	out := cartJSON{
		Items:      make([]cartLineJSON, len(lines)),
		TotalItems: e.TotalItems(),
		TotalPrice: e.TotalPrice(),
	}
	for i, l := range lines {
		out.Items[i] = cartLineJSON{
			LineID:      l.ID,
			DisplayName: l.DisplayName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			ImageRef:    l.ImageRef,
			Subtotal:    l.Subtotal(),
		}
	}
	return out
}

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

type sessionJSON struct {
	State string    `json:"state"`
	User  *userJSON `json:"user,omitempty"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeBody(r, &req); err != nil || req.IDToken == "" {
		h.respondError(w, r, http.StatusBadRequest, "idToken is required")
		return
	}

	info, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		zctx.From(r.Context()).Info("token verification failed", zap.Error(err))
		h.respondError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	sess := h.session(r)
	sess.SetUser(info)
	sess.Hub.Set(identity.Authenticated(info.UserID))

	h.respondJSON(w, r, http.StatusOK, sessionJSON{
		State: identity.StateAuthenticated.String(),
		User:  &userJSON{ID: info.UserID, Email: info.Email, Name: info.Name, Admin: info.Admin},
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.SetUser(nil)
	sess.Hub.Set(identity.Anonymous)
	h.respondJSON(w, r, http.StatusOK, sessionJSON{State: identity.StateAnonymous.String()})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	out := sessionJSON{State: sess.Hub.Current().State.String()}
	if user := sess.User(); user != nil {
		out.User = &userJSON{ID: user.UserID, Email: user.Email, Name: user.Name, Admin: user.Admin}
	}
	h.respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, http.StatusOK, toCartJSON(h.session(r).Engine))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		VariantID string `json:"variantId"`
	}
	if err := decodeBody(r, &req); err != nil || req.ProductID == "" {
		h.respondError(w, r, http.StatusBadRequest, "productId is required")
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	displayName, unitPrice, err := p.Offer(req.VariantID)
	if err != nil {
		h.respondError(w, r, http.StatusUnprocessableEntity, "unknown product variant")
		return
	}

	h.session(r).Engine.AddItem(p.ID, displayName, unitPrice, p.ImageRef, req.VariantID)
	h.respondJSON(w, r, http.StatusOK, toCartJSON(h.session(r).Engine))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	engine := h.session(r).Engine
	lineID := chi.URLParam(r, "lineID")
	if _, ok := findLine(engine.Lines(), lineID); !ok {
		h.respondError(w, r, http.StatusNotFound, "cart line not found")
		return
	}

	engine.SetQuantity(lineID, req.Quantity)
	h.respondJSON(w, r, http.StatusOK, toCartJSON(engine))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	engine := h.session(r).Engine
	engine.RemoveItem(chi.URLParam(r, "lineID"))
	h.respondJSON(w, r, http.StatusOK, toCartJSON(engine))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	engine := h.session(r).Engine
	engine.Clear()
	h.respondJSON(w, r, http.StatusOK, toCartJSON(engine))
}

func findLine(lines []cart.Line, id string) (cart.Line, bool) {
	for _, l := range lines {
		if l.ID == id {
			return l, true
		}
	}
	return cart.Line{}, false
}
