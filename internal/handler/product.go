package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pastavicenzo/storefront/internal/domain/product"
)

type variantJSON struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

type productJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Category        string          `json:"category,omitempty"`
	ImageRef        string          `json:"image,omitempty"`
	Variants        []variantJSON   `json:"variants,omitempty"`
	Promo           bool            `json:"isPromo,omitempty"`
	Veggie          bool            `json:"isVeggie,omitempty"`
	GlutenFree      bool            `json:"isGlutenFree,omitempty"`
	UnitsPerPackage int             `json:"unitsPerPackage,omitempty"`
	ServesPeople    int             `json:"servesPeople,omitempty"`
}

func toProductJSON(p product.Product) productJSON {
	out := productJSON{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Category:        p.Category,
		ImageRef:        p.ImageRef,
		Promo:           p.Promo,
		Veggie:          p.Veggie,
		GlutenFree:      p.GlutenFree,
		UnitsPerPackage: p.UnitsPerPackage,
		ServesPeople:    p.ServesPeople,
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, variantJSON{ID: v.ID, Label: v.Label, Price: v.Price})
	}
	return out
}

func (p productJSON) toDomain() product.Product {
	out := product.Product{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Category:        p.Category,
		ImageRef:        p.ImageRef,
		Promo:           p.Promo,
		Veggie:          p.Veggie,
		GlutenFree:      p.GlutenFree,
		UnitsPerPackage: p.UnitsPerPackage,
		ServesPeople:    p.ServesPeople,
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, product.Variant{ID: v.ID, Label: v.Label, Price: v.Price})
	}
	return out
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	out := make([]productJSON, len(products))
	for i, p := range products {
		out[i] = toProductJSON(p)
	}
	h.respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toProductJSON(*p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productJSON
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" {
		h.respondError(w, r, http.StatusBadRequest, "id and name are required")
		return
	}

	p := req.toDomain()
	if err := h.products.Create(r.Context(), &p); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusCreated, toProductJSON(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productJSON
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ID = chi.URLParam(r, "id")

	p := req.toDomain()
	if err := h.products.Update(r.Context(), &p); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, toProductJSON(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			h.respondError(w, r, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
