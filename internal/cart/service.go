package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmartins/storefront-core/internal/domain"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Catalog is the slice of the product catalog the cart manager needs:
// price resolution on add, and the stock ceiling on quantity updates.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

// Store persists carts. Every mutation recomputes the cart total from its
// lines before returning the updated cart.
type Store interface {
	GetOrCreate(ctx context.Context, shopperID string) (*domain.Cart, error)
	FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error)
	AddLine(ctx context.Context, cartID string, line domain.CartLine) (*domain.Cart, error)
	SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error)
	RemoveLine(ctx context.Context, cartID, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) (*domain.Cart, error)
}

type Service struct {
	store   Store
	catalog Catalog
	logger  *slog.Logger
}

func NewService(store Store, catalog Catalog, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// AddItem appends a line to the shopper's cart, creating the cart on first
// use and incrementing the quantity when the line already exists.
//
// Price resolution is two-tier: the caller-supplied price wins when
// present, otherwise the catalog price is captured. Lines referencing
// products outside the catalog fall back to zero rather than failing the
// mutation; a zero-priced line is logged as a warning since it may be
// masking a data problem upstream.
func (s *Service) AddItem(ctx context.Context, shopperID, productID string, quantity int, unitPrice *int64, title string) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.store.GetOrCreate(ctx, shopperID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	price, resolvedTitle, err := s.resolveLine(ctx, productID, unitPrice, title)
	if err != nil {
		return nil, err
	}

	if price == 0 {
		s.logger.Warn("zero-priced line item added to cart",
			"shopper_id", shopperID, "product_id", productID)
	}

	updated, err := s.store.AddLine(ctx, cart.ID, domain.CartLine{
		ProductID:  productID,
		Title:      resolvedTitle,
		Quantity:   quantity,
		PriceCents: price,
	})
	if err != nil {
		return nil, fmt.Errorf("add line: %w", err)
	}

	s.logger.Info("item added to cart",
		"shopper_id", shopperID, "product_id", productID, "quantity", quantity)
	return updated, nil
}

func (s *Service) resolveLine(ctx context.Context, productID string, unitPrice *int64, title string) (int64, string, error) {
	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return 0, "", fmt.Errorf("resolve product %s: %w", productID, err)
	}

	price := int64(0)
	switch {
	case unitPrice != nil:
		price = *unitPrice
	case product != nil:
		price = product.PriceCents
	}

	if title == "" {
		if product != nil {
			title = product.Title
		} else {
			title = "Product " + productID
		}
	}

	return price, title, nil
}

// RemoveItem deletes the matching line. An absent line (or an absent
// cart) is a no-op so that retries of the same request stay safe.
func (s *Service) RemoveItem(ctx context.Context, shopperID, productID string) (*domain.Cart, error) {
	cart, err := s.store.FindByShopper(ctx, shopperID)
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	if cart == nil {
		return s.store.GetOrCreate(ctx, shopperID)
	}

	updated, err := s.store.RemoveLine(ctx, cart.ID, productID)
	if err != nil {
		return nil, fmt.Errorf("remove line: %w", err)
	}

	s.logger.Info("item removed from cart", "shopper_id", shopperID, "product_id", productID)
	return updated, nil
}

// UpdateQuantity sets the quantity of an existing line. A quantity of
// zero or less behaves exactly like RemoveItem. For catalog products the
// requested quantity is checked against available stock; catalog-less
// lines have no stock ceiling.
func (s *Service) UpdateQuantity(ctx context.Context, shopperID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, shopperID, productID)
	}

	cart, err := s.store.FindByShopper(ctx, shopperID)
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	if cart == nil {
		return nil, ErrLineNotFound
	}

	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("resolve product %s: %w", productID, err)
	}

	if product != nil && quantity > product.Stock {
		return nil, &domain.InsufficientStockError{ProductID: productID}
	}

	updated, err := s.store.SetLineQuantity(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("cart quantity updated",
		"shopper_id", shopperID, "product_id", productID, "quantity", quantity)
	return updated, nil
}

func (s *Service) Clear(ctx context.Context, shopperID string) (*domain.Cart, error) {
	cart, err := s.store.FindByShopper(ctx, shopperID)
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	if cart == nil {
		return s.store.GetOrCreate(ctx, shopperID)
	}

	updated, err := s.store.Clear(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	s.logger.Info("cart cleared", "shopper_id", shopperID)
	return updated, nil
}

// Get returns the shopper's cart. A shopper always has a cart from the
// caller's perspective; an empty one is created on first access.
func (s *Service) Get(ctx context.Context, shopperID string) (*domain.Cart, error) {
	return s.store.GetOrCreate(ctx, shopperID)
}
