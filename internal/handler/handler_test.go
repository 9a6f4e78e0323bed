package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/domain/cart"
	"github.com/pastavicenzo/storefront/internal/domain/order"
	"github.com/pastavicenzo/storefront/internal/domain/product"
	"github.com/pastavicenzo/storefront/internal/identity"
	"github.com/pastavicenzo/storefront/internal/session"
)

// --- In-memory fakes ---

type memProducts struct {
	mu       sync.Mutex
	products []product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]product.Product(nil), m.products...), nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, *p)
	return nil
}

func (m *memProducts) Update(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == p.ID {
			m.products[i] = *p
			return nil
		}
	}
	return product.ErrNotFound
}

func (m *memProducts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return product.ErrNotFound
}

type memOrders struct {
	mu     sync.Mutex
	orders []order.Order
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, *o)
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) List(_ context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Order(nil), m.orders...), nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].ID == id {
			m.orders[i].Status = status
			return nil
		}
	}
	return order.ErrNotFound
}

type memLocal struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memLocal) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memLocal) Write(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = blob
	return nil
}

func (m *memLocal) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type memRemote struct {
	mu   sync.Mutex
	docs map[string]cartsync.RemoteDocument
}

func (m *memRemote) Get(_ context.Context, userID string) (*cartsync.RemoteDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *memRemote) Set(_ context.Context, userID string, doc cartsync.RemoteDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[userID] = doc
	return nil
}

// --- Test server ---

type env struct {
	srv      *httptest.Server
	client   *http.Client
	products *memProducts
	orders   *memOrders
	remote   *memRemote
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &memProducts{products: []product.Product{
		{
			ID:       "ravioli",
			Name:     "Ravioli",
			Price:    decimal.NewFromInt(1000),
			Category: "pastas",
			Variants: []product.Variant{
				{ID: "500g", Label: "500g", Price: decimal.NewFromInt(1200)},
			},
		},
		{ID: "gnocchi", Name: "Gnocchi", Price: decimal.NewFromInt(850), Category: "pastas"},
	}}
	orders := &memOrders{}
	remote := &memRemote{docs: make(map[string]cartsync.RemoteDocument)}

	sessions := session.NewManager(t.Context(), session.Config{
		Local:    &memLocal{data: make(map[string][]byte)},
		Remote:   remote,
		Debounce: 10 * time.Millisecond,
	})
	t.Cleanup(sessions.Close)

	svc := order.NewService(orders, order.ServiceConfig{
		ShopName:       "Pastas Vicenzo",
		WhatsAppNumber: "5491123456789",
	})

	h := NewHandler(products, orders, svc, sessions, identity.StaticVerifier{})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &env{
		srv:      srv,
		client:   &http.Client{Jar: jar},
		products: products,
		orders:   orders,
		remote:   remote,
	}
}

func (e *env) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *env) signIn(t *testing.T, token string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/session/sign-in", map[string]string{"idToken": token}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	var got []productJSON
	resp := e.do(t, http.MethodGet, "/products", nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got, 2)
	assert.Equal(t, "ravioli", got[0].ID)
	assert.Len(t, got[0].Variants, 1)
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/products/tortellini", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeviceCookieIsMinted(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/cart", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == DeviceCookie && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "expected %s cookie on first response", DeviceCookie)
}

func TestCartAddUpdateRemove(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	var c cartJSON
	resp := e.do(t, http.MethodPost, "/cart/items",
		map[string]string{"productId": "ravioli", "variantId": "500g"}, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "ravioli::500g", c.Items[0].LineID)
	assert.Equal(t, "Ravioli (500g)", c.Items[0].DisplayName)
	assert.True(t, decimal.NewFromInt(1200).Equal(c.Items[0].UnitPrice))

	// Adding the same offer again increments the existing line.
	e.do(t, http.MethodPost, "/cart/items",
		map[string]string{"productId": "ravioli", "variantId": "500g"}, &c)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	resp = e.do(t, http.MethodPatch, "/cart/items/ravioli::500g",
		map[string]int{"quantity": 5}, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, c.TotalItems)

	resp = e.do(t, http.MethodDelete, "/cart/items/ravioli::500g", nil, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, c.Items)
}

func TestCartUpdateUnknownLine(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodPatch, "/cart/items/nope", map[string]int{"quantity": 2}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddUnknownVariant(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/cart/items",
		map[string]string{"productId": "ravioli", "variantId": "2kg"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCheckoutFlow(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.do(t, http.MethodPost, "/cart/items", map[string]string{"productId": "gnocchi"}, nil)

	var res checkoutResponse
	resp := e.do(t, http.MethodPost, "/checkout", map[string]string{
		"name":           "Carla",
		"phone":          "1155551234",
		"deliveryMethod": "pickup",
	}, &res)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", res.Order.Status)
	assert.True(t, decimal.NewFromInt(850).Equal(res.Order.Total))
	assert.Contains(t, res.HandoffURL, "wa.me")

	// Checkout empties the cart immediately.
	var c cartJSON
	e.do(t, http.MethodGet, "/cart", nil, &c)
	assert.Empty(t, c.Items)
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/checkout", map[string]string{
		"name":           "Carla",
		"phone":          "1155551234",
		"deliveryMethod": "pickup",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrdersRequireAuthentication(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignedInUserSeesOwnOrders(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.signIn(t, "u1")
	e.do(t, http.MethodPost, "/cart/items", map[string]string{"productId": "gnocchi"}, nil)

	var res checkoutResponse
	resp := e.do(t, http.MethodPost, "/checkout", map[string]string{
		"name":           "Carla",
		"phone":          "1155551234",
		"deliveryMethod": "pickup",
	}, &res)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var orders []orderJSON
	e.do(t, http.MethodGet, "/orders", nil, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, res.Order.ID, orders[0].ID)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/admin/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	e.signIn(t, "u1")
	resp = e.do(t, http.MethodGet, "/admin/orders", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	e.signIn(t, "boss:admin")
	resp = e.do(t, http.MethodGet, "/admin/orders", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminProductLifecycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.signIn(t, "boss:admin")

	created := productJSON{ID: "sorrentinos", Name: "Sorrentinos", Price: decimal.NewFromInt(1500)}
	resp := e.do(t, http.MethodPost, "/admin/products", created, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	updated := productJSON{Name: "Sorrentinos de Jamón", Price: decimal.NewFromInt(1600)}
	resp = e.do(t, http.MethodPut, "/admin/products/sorrentinos", updated, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got productJSON
	e.do(t, http.MethodGet, "/products/sorrentinos", nil, &got)
	assert.Equal(t, "Sorrentinos de Jamón", got.Name)

	resp = e.do(t, http.MethodDelete, "/admin/products/sorrentinos", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/products/sorrentinos", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminUpdatesOrderStatus(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.orders.orders = append(e.orders.orders, order.Order{
		ID:     "order-1",
		Status: order.StatusPending,
		Total:  decimal.NewFromInt(100),
	})

	e.signIn(t, "boss:admin")
	var got orderJSON
	resp := e.do(t, http.MethodPatch, "/admin/orders/order-1/status",
		map[string]string{"status": "confirmed"}, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", got.Status)

	resp = e.do(t, http.MethodPatch, "/admin/orders/order-1/status",
		map[string]string{"status": "burnt"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSignInAdoptsRemoteCart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.remote.mu.Lock()
	e.remote.docs["u1"] = cartsync.RemoteDocument{
		Lines: []cart.Line{
			{ID: "ravioli::500g", DisplayName: "Ravioli (500g)", UnitPrice: decimal.NewFromInt(1200), Quantity: 3},
		},
		UpdatedAt: time.Now(),
	}
	e.remote.mu.Unlock()

	e.signIn(t, "u1")

	// The merge runs on a detached goroutine; poll until it commits.
	require.Eventually(t, func() bool {
		var c cartJSON
		e.do(t, http.MethodGet, "/cart", nil, &c)
		return c.TotalItems == 3
	}, time.Second, 10*time.Millisecond)
}

func TestSignOutRetainsCart(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.signIn(t, "u1")
	e.do(t, http.MethodPost, "/cart/items", map[string]string{"productId": "gnocchi"}, nil)

	resp := e.do(t, http.MethodPost, "/session/sign-out", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var c cartJSON
	e.do(t, http.MethodGet, "/cart", nil, &c)
	assert.Equal(t, 1, c.TotalItems, "cart is retained on sign-out")

	var s sessionJSON
	e.do(t, http.MethodGet, "/session", nil, &s)
	assert.Equal(t, "anonymous", s.State)
	assert.Nil(t, s.User)
}
