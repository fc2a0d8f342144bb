package domain

// InsufficientStockError names the product whose stock could not cover a
// requested quantity, so callers can tell the shopper which line failed.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock for product " + e.ProductID
}
