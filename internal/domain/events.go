package domain

import "time"

type TicketCreatedEvent struct {
	TicketCode   string       `json:"ticket_code"`
	ShopperID    string       `json:"shopper_id"`
	AmountCents  int64        `json:"amount_cents"`
	Lines        []TicketLine `json:"lines"`
	PurchaseDate time.Time    `json:"purchase_date"`
}
