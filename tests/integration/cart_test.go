//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

func TestCartLifecycle(t *testing.T) {
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, "/api/cart/items",
		map[string]string{"productId": "ravioles-ricota", "variantId": "1kg"})
	cart := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}
	if cart.Items[0].LineID != "ravioles-ricota::1kg" {
		t.Errorf("line id: got %q", cart.Items[0].LineID)
	}
	if cart.Items[0].UnitPrice != "2200" {
		t.Errorf("unit price: got %q", cart.Items[0].UnitPrice)
	}

	// Same offer again collapses into the existing line.
	resp = doJSON(t, client, http.MethodPost, "/api/cart/items",
		map[string]string{"productId": "ravioles-ricota", "variantId": "1kg"})
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected single line with quantity 2, got %+v", cart.Items)
	}

	resp = doJSON(t, client, http.MethodPatch, "/api/cart/items/ravioles-ricota::1kg",
		map[string]int{"quantity": 3})
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if cart.TotalItems != 3 {
		t.Errorf("total items: got %d", cart.TotalItems)
	}
	if cart.TotalPrice != "6600" {
		t.Errorf("total price: got %q", cart.TotalPrice)
	}

	resp = doJSON(t, client, http.MethodDelete, "/api/cart", nil)
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %+v", cart.Items)
	}
}

func TestCartSurvivesSignInAndMergesRemote(t *testing.T) {
	// First device: sign in, buy something, let the debounced write land.
	first := newClient(t)
	signIn(t, first, "merge-user")

	resp := doJSON(t, first, http.MethodPost, "/api/cart/items",
		map[string]string{"productId": "noquis-papa"})
	resp.Body.Close()

	// Default debounce is 500ms in the compose config.
	time.Sleep(1500 * time.Millisecond)

	// Second device: anonymous cart, then sign-in triggers the merge.
	second := newClient(t)
	resp = doJSON(t, second, http.MethodPost, "/api/cart/items",
		map[string]string{"productId": "salsa-filetto"})
	resp.Body.Close()

	signIn(t, second, "merge-user")

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := doGet(t, second, "/api/cart")
		cart := decodeJSON[cartResponse](t, resp)
		resp.Body.Close()

		if len(cart.Items) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("merged cart never appeared, got %+v", cart.Items)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestSignOutRetainsCart(t *testing.T) {
	client := newClient(t)
	signIn(t, client, "signout-user")

	resp := doJSON(t, client, http.MethodPost, "/api/cart/items",
		map[string]string{"productId": "salsa-bolognesa"})
	resp.Body.Close()

	resp = doJSON(t, client, http.MethodPost, "/api/session/sign-out", nil)
	session := decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()

	if session.State != "anonymous" {
		t.Errorf("state: got %q", session.State)
	}

	resp = doGet(t, client, "/api/cart")
	cart := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if cart.TotalItems != 1 {
		t.Errorf("cart should be retained on sign-out, got %+v", cart.Items)
	}
}
