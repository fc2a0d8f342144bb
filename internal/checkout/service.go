package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dmartins/storefront-core/internal/domain"
	"github.com/dmartins/storefront-core/internal/ledger"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to check out")
	ErrTicketCodeCollision = errors.New("could not generate a unique ticket code")
)

// CartStore is the slice of cart persistence checkout needs: read the
// cart before the ledger write, empty it after.
type CartStore interface {
	FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) (*domain.Cart, error)
}

// Catalog resolves live products and adjusts stock. DecrementStock must
// be atomic against the current stock value and return
// catalog.ErrInsufficientStock instead of ever going negative.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	DecrementStock(ctx context.Context, id string, quantity int) error
}

// Ledger is the append-only ticket store. Insert returns
// ledger.ErrCodeTaken when the generated code already exists.
type Ledger interface {
	Insert(ctx context.Context, ticket *domain.Ticket) error
	FindByCode(ctx context.Context, code string) (*domain.Ticket, error)
	FindByPurchaser(ctx context.Context, purchaser string) ([]domain.Ticket, error)
	UpdateStatus(ctx context.Context, code string, status domain.TicketStatus) (*domain.Ticket, error)
	Stats(ctx context.Context) (*ledger.Stats, error)
}

// Notifier requests receipt delivery. Delivery is best-effort: a failed
// publish is logged and never fails the checkout.
type Notifier interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	carts    CartStore
	catalog  Catalog
	tickets  Ledger
	notifier Notifier
	locks    *shopperLocks
	logger   *slog.Logger

	checkouts     metric.Int64Counter
	degradedSteps metric.Int64Counter
}

func NewService(carts CartStore, cat Catalog, tickets Ledger, notifier Notifier, logger *slog.Logger) (*Service, error) {
	meter := otel.Meter("checkout")

	checkouts, err := meter.Int64Counter("checkouts_total",
		metric.WithDescription("Checkout attempts by outcome"))
	if err != nil {
		return nil, err
	}

	degradedSteps, err := meter.Int64Counter("checkout_degraded_steps_total",
		metric.WithDescription("Post-ticket steps that failed and were only logged"))
	if err != nil {
		return nil, err
	}

	return &Service{
		carts:         carts,
		catalog:       cat,
		tickets:       tickets,
		notifier:      notifier,
		locks:         newShopperLocks(),
		logger:        logger,
		checkouts:     checkouts,
		degradedSteps: degradedSteps,
	}, nil
}

type stockDecrement struct {
	productID string
	quantity  int
}

// Checkout converts the shopper's cart into exactly one ticket, or fails
// with the cart untouched.
//
// The ticket is written before stock is adjusted and before notification
// is requested: it is the durable proof of purchase and must exist even
// when the later steps degrade. Everything before the ledger write is
// fail-fast and side-effect free; everything after it is best-effort and
// only logged.
func (s *Service) Checkout(ctx context.Context, shopperID string) (*domain.Ticket, error) {
	unlock := s.locks.lock(shopperID)
	defer unlock()

	cart, err := s.carts.FindByShopper(ctx, shopperID)
	if err != nil {
		s.recordOutcome(ctx, "error")
		return nil, fmt.Errorf("load cart: %w", err)
	}

	if cart == nil || len(cart.Lines) == 0 {
		s.recordOutcome(ctx, "empty_cart")
		return nil, ErrEmptyCart
	}

	decrements, err := s.validateStock(ctx, cart)
	if err != nil {
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			s.recordOutcome(ctx, "insufficient_stock")
		} else {
			s.recordOutcome(ctx, "error")
		}
		return nil, err
	}

	ticket := buildTicket(shopperID, cart)

	if err := s.writeTicket(ctx, ticket); err != nil {
		s.recordOutcome(ctx, "error")
		return nil, err
	}

	// Committed from here on. The remaining steps refine bookkeeping
	// and never undo the ticket.
	s.adjustStock(ctx, ticket.Code, decrements)
	s.requestReceipt(ctx, shopperID, ticket)
	s.clearCart(ctx, cart.ID, ticket.Code)

	s.recordOutcome(ctx, "success")
	s.logger.Info("checkout completed",
		"shopper_id", shopperID, "ticket_code", ticket.Code, "amount_cents", ticket.AmountCents)
	return ticket, nil
}

// validateStock resolves each line against the live catalog. Lines whose
// product is unknown to the catalog are allowed through on their captured
// price and get no stock check; a known product with insufficient stock
// fails the whole checkout before any write happens.
func (s *Service) validateStock(ctx context.Context, cart *domain.Cart) ([]stockDecrement, error) {
	var decrements []stockDecrement

	for _, line := range cart.Lines {
		product, err := s.catalog.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", line.ProductID, err)
		}

		if product == nil {
			s.logger.Info("cart line references product outside catalog, skipping stock check",
				"product_id", line.ProductID)
			continue
		}

		if product.Stock < line.Quantity {
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID}
		}

		decrements = append(decrements, stockDecrement{
			productID: line.ProductID,
			quantity:  line.Quantity,
		})
	}

	return decrements, nil
}

// buildTicket freezes the cart into a ticket. Lines are copied and the
// amount is re-derived from the captured line prices, never read from the
// stored cart total.
func buildTicket(shopperID string, cart *domain.Cart) *domain.Ticket {
	lines := make([]domain.TicketLine, 0, len(cart.Lines))
	var amount int64
	for _, l := range cart.Lines {
		lines = append(lines, domain.TicketLine{
			ProductID:  l.ProductID,
			Title:      l.Title,
			Quantity:   l.Quantity,
			PriceCents: l.PriceCents,
		})
		amount += l.Subtotal()
	}

	return &domain.Ticket{
		Purchaser:    shopperID,
		AmountCents:  amount,
		Status:       domain.TicketStatusCompleted,
		PurchaseDate: time.Now().UTC(),
		Lines:        lines,
	}
}

func (s *Service) writeTicket(ctx context.Context, ticket *domain.Ticket) error {
	for attempt := 0; attempt < 2; attempt++ {
		ticket.Code = NewTicketCode()

		err := s.tickets.Insert(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ledger.ErrCodeTaken) {
			return fmt.Errorf("write ticket: %w", err)
		}

		s.logger.Warn("ticket code collision, regenerating", "code", ticket.Code)
	}

	return ErrTicketCodeCollision
}

// adjustStock decrements stock for every line that matched a catalog
// product during validation. Each decrement re-checks the current stock;
// losing a race since validation skips the decrement rather than letting
// stock go negative, and the ticket stands as written.
func (s *Service) adjustStock(ctx context.Context, ticketCode string, decrements []stockDecrement) {
	for _, d := range decrements {
		if err := s.catalog.DecrementStock(ctx, d.productID, d.quantity); err != nil {
			s.recordDegraded(ctx, "stock_decrement")
			s.logger.Warn("stock decrement skipped after ticket write",
				"error", err, "product_id", d.productID, "ticket_code", ticketCode)
		}
	}
}

func (s *Service) requestReceipt(ctx context.Context, shopperID string, ticket *domain.Ticket) {
	if s.notifier == nil {
		return
	}

	event := domain.TicketCreatedEvent{
		TicketCode:   ticket.Code,
		ShopperID:    shopperID,
		AmountCents:  ticket.AmountCents,
		Lines:        ticket.Lines,
		PurchaseDate: ticket.PurchaseDate,
	}

	if err := s.notifier.Publish(ctx, ticket.Code, event); err != nil {
		s.recordDegraded(ctx, "notification")
		s.logger.Warn("receipt notification failed",
			"error", err, "ticket_code", ticket.Code)
	}
}

func (s *Service) clearCart(ctx context.Context, cartID, ticketCode string) {
	if _, err := s.carts.Clear(ctx, cartID); err != nil {
		s.recordDegraded(ctx, "cart_clear")
		s.logger.Warn("failed to clear cart after checkout",
			"error", err, "cart_id", cartID, "ticket_code", ticketCode)
	}
}

func (s *Service) TicketByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	return s.tickets.FindByCode(ctx, code)
}

func (s *Service) TicketsByPurchaser(ctx context.Context, shopperID string) ([]domain.Ticket, error) {
	return s.tickets.FindByPurchaser(ctx, shopperID)
}

func (s *Service) UpdateTicketStatus(ctx context.Context, code string, status domain.TicketStatus) (*domain.Ticket, error) {
	return s.tickets.UpdateStatus(ctx, code, status)
}

func (s *Service) Stats(ctx context.Context) (*ledger.Stats, error) {
	return s.tickets.Stats(ctx)
}

func (s *Service) recordOutcome(ctx context.Context, outcome string) {
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *Service) recordDegraded(ctx context.Context, step string) {
	s.degradedSteps.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}
