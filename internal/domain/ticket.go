package domain

import "time"

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusCompleted TicketStatus = "completed"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// CanTransitionTo reports whether a status change is legal. Tickets are
// immutable apart from these transitions.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	switch s {
	case TicketStatusPending:
		return next == TicketStatusCompleted || next == TicketStatusCancelled
	case TicketStatusCompleted:
		return next == TicketStatusCancelled
	default:
		return false
	}
}

type TicketLine struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// Ticket is the immutable proof of purchase. Its lines are copies of the
// cart lines at checkout time, never live product references.
type Ticket struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Purchaser    string       `json:"purchaser"`
	AmountCents  int64        `json:"amount_cents"`
	Status       TicketStatus `json:"status"`
	PurchaseDate time.Time    `json:"purchase_date"`
	Lines        []TicketLine `json:"lines"`
}
