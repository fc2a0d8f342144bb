package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dmartins/storefront-core/internal/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int
	carts  map[string]*domain.Cart // keyed by shopper ID
	byID   map[string]*domain.Cart
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts: make(map[string]*domain.Cart),
		byID:  make(map[string]*domain.Cart),
	}
}

func (f *fakeStore) GetOrCreate(_ context.Context, shopperID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.carts[shopperID]; ok {
		return clone(c), nil
	}

	f.nextID++
	c := &domain.Cart{ID: fmt.Sprintf("cart-%d", f.nextID), ShopperID: shopperID}
	f.carts[shopperID] = c
	f.byID[c.ID] = c
	return clone(c), nil
}

func (f *fakeStore) FindByShopper(_ context.Context, shopperID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.carts[shopperID]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (f *fakeStore) AddLine(_ context.Context, cartID string, line domain.CartLine) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.byID[cartID]
	found := false
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			found = true
			break
		}
	}
	if !found {
		c.Lines = append(c.Lines, line)
	}
	c.TotalCents = c.Total()
	return clone(c), nil
}

func (f *fakeStore) SetLineQuantity(_ context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.byID[cartID]
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			c.TotalCents = c.Total()
			return clone(c), nil
		}
	}
	return nil, ErrLineNotFound
}

func (f *fakeStore) RemoveLine(_ context.Context, cartID, productID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.byID[cartID]
	lines := c.Lines[:0]
	for _, l := range c.Lines {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	c.Lines = lines
	c.TotalCents = c.Total()
	return clone(c), nil
}

func (f *fakeStore) Clear(_ context.Context, cartID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.byID[cartID]
	c.Lines = nil
	c.TotalCents = 0
	return clone(c), nil
}

func clone(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	m := make(map[string]domain.Product)
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeCatalog{products: m}
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func newTestService(store Store, catalog Catalog) *Service {
	return NewService(store, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ptr(v int64) *int64 { return &v }

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("creates cart and captures catalog price", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", Title: "Notebook", PriceCents: 120000, Stock: 10},
		))

		cart, err := svc.AddItem(ctx, "shopper-1", "PROD-001", 2, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cart.Lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(cart.Lines))
		}
		line := cart.Lines[0]
		if line.PriceCents != 120000 {
			t.Errorf("expected catalog price 120000, got %d", line.PriceCents)
		}
		if line.Title != "Notebook" {
			t.Errorf("expected catalog title, got %q", line.Title)
		}
		if cart.TotalCents != 240000 {
			t.Errorf("expected total 240000, got %d", cart.TotalCents)
		}
	})

	t.Run("caller price wins over catalog price", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", Title: "Notebook", PriceCents: 120000, Stock: 10},
		))

		cart, err := svc.AddItem(ctx, "shopper-1", "PROD-001", 1, ptr(99000), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cart.Lines[0].PriceCents != 99000 {
			t.Errorf("expected caller price 99000, got %d", cart.Lines[0].PriceCents)
		}
	})

	t.Run("product outside catalog falls back to zero price", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog())

		cart, err := svc.AddItem(ctx, "shopper-1", "legacy-7", 1, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cart.Lines[0].PriceCents != 0 {
			t.Errorf("expected zero price, got %d", cart.Lines[0].PriceCents)
		}
		if cart.Lines[0].Title != "Product legacy-7" {
			t.Errorf("unexpected fallback title %q", cart.Lines[0].Title)
		}
	})

	t.Run("existing line is incremented and keeps its captured price", func(t *testing.T) {
		store := newFakeStore()
		catalog := newFakeCatalog(
			domain.Product{ID: "PROD-001", Title: "Notebook", PriceCents: 120000, Stock: 10},
		)
		svc := newTestService(store, catalog)

		if _, err := svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Catalog price change after capture must not leak into the line.
		catalog.mu.Lock()
		catalog.products["PROD-001"] = domain.Product{ID: "PROD-001", Title: "Notebook", PriceCents: 150000, Stock: 10}
		catalog.mu.Unlock()

		cart, err := svc.AddItem(ctx, "shopper-1", "PROD-001", 2, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cart.Lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(cart.Lines))
		}
		if cart.Lines[0].Quantity != 3 {
			t.Errorf("expected quantity 3, got %d", cart.Lines[0].Quantity)
		}
		if cart.Lines[0].PriceCents != 120000 {
			t.Errorf("expected captured price 120000, got %d", cart.Lines[0].PriceCents)
		}
		if cart.TotalCents != 360000 {
			t.Errorf("expected total 360000, got %d", cart.TotalCents)
		}
	})

	t.Run("rejects quantity below one", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog())

		if _, err := svc.AddItem(ctx, "shopper-1", "PROD-001", 0, nil, ""); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})
}

func TestService_RemoveItem(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the line and recomputes the total", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 10},
			domain.Product{ID: "PROD-002", PriceCents: 200, Stock: 10},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, "")
		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-002", 1, nil, "")

		cart, err := svc.RemoveItem(ctx, "shopper-1", "PROD-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cart.Lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(cart.Lines))
		}
		if cart.TotalCents != 200 {
			t.Errorf("expected total 200, got %d", cart.TotalCents)
		}
	})

	t.Run("absent line is a no-op", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 10},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, "")

		cart, err := svc.RemoveItem(ctx, "shopper-1", "PROD-999")
		if err != nil {
			t.Fatalf("expected no-op, got error: %v", err)
		}
		if len(cart.Lines) != 1 {
			t.Errorf("expected untouched cart, got %d lines", len(cart.Lines))
		}
	})

	t.Run("absent cart returns an empty cart", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog())

		cart, err := svc.RemoveItem(ctx, "shopper-1", "PROD-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Lines) != 0 || cart.TotalCents != 0 {
			t.Errorf("expected empty cart, got %+v", cart)
		}
	})
}

func TestService_UpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("updates quantity within available stock", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 5},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, "")

		cart, err := svc.UpdateQuantity(ctx, "shopper-1", "PROD-001", 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart.Lines[0].Quantity != 4 {
			t.Errorf("expected quantity 4, got %d", cart.Lines[0].Quantity)
		}
		if cart.TotalCents != 400 {
			t.Errorf("expected total 400, got %d", cart.TotalCents)
		}
	})

	t.Run("rejects quantity above available stock", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 3},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, "")

		_, err := svc.UpdateQuantity(ctx, "shopper-1", "PROD-001", 4)
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if stockErr.ProductID != "PROD-001" {
			t.Errorf("expected error to name PROD-001, got %q", stockErr.ProductID)
		}
	})

	t.Run("zero quantity behaves like remove", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 5},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 2, nil, "")

		cart, err := svc.UpdateQuantity(ctx, "shopper-1", "PROD-001", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Lines) != 0 {
			t.Errorf("expected empty cart, got %d lines", len(cart.Lines))
		}
		if cart.TotalCents != 0 {
			t.Errorf("expected total 0, got %d", cart.TotalCents)
		}
	})

	t.Run("catalog-less line has no stock ceiling", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog())

		_, _ = svc.AddItem(ctx, "shopper-1", "legacy-7", 1, ptr(500), "")

		cart, err := svc.UpdateQuantity(ctx, "shopper-1", "legacy-7", 50)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart.Lines[0].Quantity != 50 {
			t.Errorf("expected quantity 50, got %d", cart.Lines[0].Quantity)
		}
	})

	t.Run("absent line fails", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 5},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 1, nil, "")

		if _, err := svc.UpdateQuantity(ctx, "shopper-1", "PROD-999", 2); !errors.Is(err, ErrLineNotFound) {
			t.Fatalf("expected ErrLineNotFound, got %v", err)
		}
	})
}

func TestService_ClearAndGet(t *testing.T) {
	ctx := context.Background()

	t.Run("clear empties the cart and zeroes the total", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog(
			domain.Product{ID: "PROD-001", PriceCents: 100, Stock: 10},
		))

		_, _ = svc.AddItem(ctx, "shopper-1", "PROD-001", 3, nil, "")

		cart, err := svc.Clear(ctx, "shopper-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Lines) != 0 || cart.TotalCents != 0 {
			t.Errorf("expected empty cart, got %+v", cart)
		}
	})

	t.Run("get creates an empty cart on first access", func(t *testing.T) {
		svc := newTestService(newFakeStore(), newFakeCatalog())

		cart, err := svc.Get(ctx, "brand-new-shopper")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart == nil {
			t.Fatal("expected a cart, got nil")
		}
		if len(cart.Lines) != 0 || cart.TotalCents != 0 {
			t.Errorf("expected empty cart, got %+v", cart)
		}
	})
}

func TestService_TotalInvariant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), newFakeCatalog(
		domain.Product{ID: "PROD-001", PriceCents: 250, Stock: 100},
		domain.Product{ID: "PROD-002", PriceCents: 999, Stock: 100},
	))

	check := func(t *testing.T, c *domain.Cart) {
		t.Helper()
		if c.TotalCents != c.Total() {
			t.Fatalf("total invariant broken: stored %d, derived %d", c.TotalCents, c.Total())
		}
	}

	c, _ := svc.AddItem(ctx, "shopper-1", "PROD-001", 3, nil, "")
	check(t, c)
	c, _ = svc.AddItem(ctx, "shopper-1", "PROD-002", 2, nil, "")
	check(t, c)
	c, _ = svc.UpdateQuantity(ctx, "shopper-1", "PROD-001", 7)
	check(t, c)
	c, _ = svc.RemoveItem(ctx, "shopper-1", "PROD-002")
	check(t, c)
	c, _ = svc.Clear(ctx, "shopper-1")
	check(t, c)
}
