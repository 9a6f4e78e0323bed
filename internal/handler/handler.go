// Package handler exposes the storefront HTTP API: catalog browsing,
// per-device cart manipulation, session sign-in and sign-out, checkout,
// and the admin panel endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pastavicenzo/storefront/internal/domain/order"
	"github.com/pastavicenzo/storefront/internal/domain/product"
	"github.com/pastavicenzo/storefront/internal/identity"
	"github.com/pastavicenzo/storefront/internal/session"
)

// DeviceCookie is the cookie carrying the opaque device identifier that
// keys the device-local cart.
const DeviceCookie = "shop_device-id"

const deviceCookieMaxAge = 365 * 24 * 60 * 60

// Handler serves the storefront API, delegating business logic to the
// domain services and per-device cart engines.
type Handler struct {
	products     product.Repository
	orders       order.Repository
	orderService *order.Service
	sessions     *session.Manager
	verifier     identity.Verifier
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	products product.Repository,
	orders order.Repository,
	orderService *order.Service,
	sessions *session.Manager,
	verifier identity.Verifier,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		orderService: orderService,
		sessions:     sessions,
		verifier:     verifier,
	}
}

// Routes builds the API router. Every route runs behind the device
// session middleware so handlers always have a cart engine at hand.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.withDeviceSession)

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Post("/session/sign-in", h.signIn)
	r.Post("/session/sign-out", h.signOut)
	r.Get("/session", h.getSession)

	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addCartItem)
	r.Patch("/cart/items/{lineID}", h.updateCartItem)
	r.Delete("/cart/items/{lineID}", h.removeCartItem)
	r.Delete("/cart", h.clearCart)

	r.Post("/checkout", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Get("/orders", h.adminListOrders)
		r.Patch("/orders/{id}/status", h.updateOrderStatus)
	})

	return r
}

type sessionKey struct{}

// withDeviceSession resolves the device cookie, minting one on first
// visit, and attaches the device's session to the request context.
func (h *Handler) withDeviceSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := ""
		if c, err := r.Cookie(DeviceCookie); err == nil && c.Value != "" {
			deviceID = c.Value
		}
		if deviceID == "" || uuid.Validate(deviceID) != nil {
			deviceID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceCookie,
				Value:    deviceID,
				Path:     "/",
				MaxAge:   deviceCookieMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		sess := h.sessions.GetOrCreate(deviceID)
		if sess == nil {
			h.respondError(w, r, http.StatusServiceUnavailable, "shutting down")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects requests whose session user lacks the admin role.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.session(r).User()
		if user == nil {
			h.respondError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.Admin {
			h.respondError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) session(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return s
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("response encode failed", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respondJSON(w, r, status, errorResponse{Code: status, Message: message})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	h.respondError(w, r, http.StatusInternalServerError, "internal error")
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
