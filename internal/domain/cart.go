package domain

import "time"

type CartLine struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

func (l CartLine) Subtotal() int64 {
	return l.PriceCents * int64(l.Quantity)
}

type Cart struct {
	ID         string     `json:"id"`
	ShopperID  string     `json:"shopper_id"`
	Lines      []CartLine `json:"lines"`
	TotalCents int64      `json:"total_cents"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Total recomputes the cart total from its lines. Callers persist this
// value; the stored total is never trusted over the lines.
func (c *Cart) Total() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
