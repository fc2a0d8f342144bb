package cart

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmartins/storefront-core/internal/domain"
	"github.com/dmartins/storefront-core/internal/identity"
)

func newTestMux(svc *Service) *http.ServeMux {
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", h.HandleGet)
	mux.HandleFunc("DELETE /cart", h.HandleClear)
	mux.HandleFunc("POST /cart/items", h.HandleAddItem)
	mux.HandleFunc("PATCH /cart/items/{productId}", h.HandleUpdateQuantity)
	mux.HandleFunc("DELETE /cart/items/{productId}", h.HandleRemoveItem)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, shopperID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if shopperID != "" {
		req.Header.Set(identity.ShopperHeader, shopperID)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) domain.Cart {
	t.Helper()

	var cart domain.Cart
	if err := json.NewDecoder(rec.Body).Decode(&cart); err != nil {
		t.Fatalf("failed to decode cart response: %v", err)
	}
	return cart
}

func TestHandler_AddItem(t *testing.T) {
	t.Run("adds item and returns updated cart", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", Title: "Notebook", PriceCents: 120000, Stock: 10},
		)))

		rec := doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
			`{"product_id": "PROD-001", "quantity": 2}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		cart := decodeCart(t, rec)
		if cart.TotalCents != 240000 {
			t.Errorf("expected total 240000, got %d", cart.TotalCents)
		}
	})

	t.Run("quantity defaults to one", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-002", Title: "Mouse", PriceCents: 2500, Stock: 5},
		)))

		rec := doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
			`{"product_id": "PROD-002"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		cart := decodeCart(t, rec)
		if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 1 {
			t.Errorf("expected single line with quantity 1, got %+v", cart.Lines)
		}
	})

	t.Run("missing product id is a bad request", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog()))

		rec := doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1", `{"quantity": 1}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog()))

		rec := doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1", `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("negative quantity is a bad request", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog()))

		rec := doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
			`{"product_id": "PROD-001", "quantity": -2}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_UpdateQuantity(t *testing.T) {
	t.Run("quantity over stock is a conflict", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, newFakeCatalog(
			domain.Product{ID: "PROD-004", Title: "Monitor", PriceCents: 30000, Stock: 3},
		))
		mux := newTestMux(svc)

		doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
			`{"product_id": "PROD-004", "quantity": 1}`)

		rec := doRequest(t, mux, http.MethodPatch, "/cart/items/PROD-004", "shopper-1",
			`{"quantity": 5}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown line is not found", func(t *testing.T) {
		mux := newTestMux(newTestService(newFakeStore(), newFakeCatalog()))

		rec := doRequest(t, mux, http.MethodPatch, "/cart/items/PROD-404", "shopper-1",
			`{"quantity": 2}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("zero quantity removes the line", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-002", Title: "Mouse", PriceCents: 2500, Stock: 5},
		))
		mux := newTestMux(svc)

		doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
			`{"product_id": "PROD-002", "quantity": 2}`)

		rec := doRequest(t, mux, http.MethodPatch, "/cart/items/PROD-002", "shopper-1",
			`{"quantity": 0}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		cart := decodeCart(t, rec)
		if len(cart.Lines) != 0 || cart.TotalCents != 0 {
			t.Errorf("expected emptied cart, got %+v", cart)
		}
	})
}

func TestHandler_GetAndClear(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCatalog(
		domain.Product{ID: "PROD-003", Title: "Keyboard", PriceCents: 8000, Stock: 8},
	))
	mux := newTestMux(svc)

	rec := doRequest(t, mux, http.MethodGet, "/cart", "shopper-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cart := decodeCart(t, rec)
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart on first access, got %d lines", len(cart.Lines))
	}

	doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
		`{"product_id": "PROD-003", "quantity": 3}`)

	rec = doRequest(t, mux, http.MethodDelete, "/cart", "shopper-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cart = decodeCart(t, rec)
	if len(cart.Lines) != 0 || cart.TotalCents != 0 {
		t.Errorf("expected cleared cart, got %+v", cart)
	}
}

func TestHandler_RemoveItem(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCatalog(
		domain.Product{ID: "PROD-002", Title: "Mouse", PriceCents: 2500, Stock: 5},
	))
	mux := newTestMux(svc)

	doRequest(t, mux, http.MethodPost, "/cart/items", "shopper-1",
		`{"product_id": "PROD-002", "quantity": 1}`)

	rec := doRequest(t, mux, http.MethodDelete, "/cart/items/PROD-002", "shopper-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cart := decodeCart(t, rec)
	if len(cart.Lines) != 0 {
		t.Errorf("expected line removed, got %+v", cart.Lines)
	}

	// Removing an absent line stays a safe no-op.
	rec = doRequest(t, mux, http.MethodDelete, "/cart/items/PROD-404", "shopper-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for absent line, got %d", rec.Code)
	}
}
