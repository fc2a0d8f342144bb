package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dmartins/storefront-core/internal/domain"
)

var (
	// ErrCodeTaken means the ticket code already exists in the ledger.
	// The UNIQUE constraint on code is the final authority on
	// uniqueness; generation only makes collisions unlikely.
	ErrCodeTaken = errors.New("ticket code already exists")

	ErrTicketNotFound    = errors.New("ticket not found")
	ErrIllegalTransition = errors.New("illegal ticket status transition")
)

const uniqueViolation = "23505"

type TicketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Insert appends one ticket and its copied line items in a single
// transaction. The ledger is append-only: nothing here updates an
// existing row.
func (r *TicketRepository) Insert(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ticket.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (id, code, purchaser, amount_cents, status, purchase_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ticket.ID, ticket.Code, ticket.Purchaser, ticket.AmountCents, ticket.Status, ticket.PurchaseDate)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrCodeTaken
		}
		return err
	}

	for _, line := range ticket.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ticket_items (id, ticket_id, product_id, title, quantity, price_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), ticket.ID, line.ProductID, line.Title, line.Quantity, line.PriceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *TicketRepository) FindByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	ticket := &domain.Ticket{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, purchaser, amount_cents, status, purchase_date
		FROM tickets
		WHERE code = $1
	`, code).Scan(&ticket.ID, &ticket.Code, &ticket.Purchaser, &ticket.AmountCents, &ticket.Status, &ticket.PurchaseDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, title, quantity, price_cents
		FROM ticket_items
		WHERE ticket_id = $1
	`, ticket.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.TicketLine
		if err := rows.Scan(&line.ProductID, &line.Title, &line.Quantity, &line.PriceCents); err != nil {
			return nil, err
		}
		ticket.Lines = append(ticket.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ticket, nil
}

func (r *TicketRepository) FindByPurchaser(ctx context.Context, purchaser string) ([]domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, purchaser, amount_cents, status, purchase_date
		FROM tickets
		WHERE purchaser = $1
		ORDER BY purchase_date DESC
	`, purchaser)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ticketMap := make(map[string]*domain.Ticket)
	var ticketIDs []string

	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(&ticket.ID, &ticket.Code, &ticket.Purchaser, &ticket.AmountCents, &ticket.Status, &ticket.PurchaseDate); err != nil {
			return nil, err
		}
		ticket.Lines = []domain.TicketLine{}
		ticketMap[ticket.ID] = &ticket
		ticketIDs = append(ticketIDs, ticket.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ticketIDs) == 0 {
		return []domain.Ticket{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT ticket_id, product_id, title, quantity, price_cents
		FROM ticket_items
		WHERE ticket_id = ANY($1)
	`, pq.Array(ticketIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		var ticketID string
		var line domain.TicketLine
		if err := lineRows.Scan(&ticketID, &line.ProductID, &line.Title, &line.Quantity, &line.PriceCents); err != nil {
			return nil, err
		}
		ticket := ticketMap[ticketID]
		ticket.Lines = append(ticket.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		tickets = append(tickets, *ticketMap[id])
	}

	return tickets, nil
}

// UpdateStatus applies one of the few legal status transitions. The
// current status is read under a row lock so concurrent transitions
// cannot both pass the legality check.
func (r *TicketRepository) UpdateStatus(ctx context.Context, code string, status domain.TicketStatus) (*domain.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.TicketStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM tickets WHERE code = $1 FOR UPDATE
	`, code).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}

	if !current.CanTransitionTo(status) {
		return nil, ErrIllegalTransition
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1 WHERE code = $2
	`, status, code)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.FindByCode(ctx, code)
}

type Stats struct {
	TotalRevenueCents int64     `json:"total_revenue_cents"`
	TotalPurchases    int       `json:"total_purchases"`
	AverageOrderCents int64     `json:"average_order_cents"`
	LastUpdate        time.Time `json:"last_update"`
}

func (r *TicketRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{LastUpdate: time.Now().UTC()}

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM tickets
		WHERE status != 'cancelled'
	`).Scan(&stats.TotalRevenueCents, &stats.TotalPurchases)
	if err != nil {
		return nil, err
	}

	if stats.TotalPurchases > 0 {
		stats.AverageOrderCents = stats.TotalRevenueCents / int64(stats.TotalPurchases)
	}

	return stats, nil
}
