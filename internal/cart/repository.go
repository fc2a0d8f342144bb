package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/dmartins/storefront-core/internal/domain"
)

var ErrLineNotFound = errors.New("line item not found in cart")

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate returns the shopper's cart, creating an empty one on first
// use. The UNIQUE constraint on shopper_id makes the one-cart-per-shopper
// rule structural, so a concurrent first add cannot produce two carts.
func (r *CartRepository) GetOrCreate(ctx context.Context, shopperID string) (*domain.Cart, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (id, shopper_id, total_cents, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (shopper_id) DO NOTHING
	`, uuid.New().String(), shopperID)
	if err != nil {
		return nil, err
	}

	return r.FindByShopper(ctx, shopperID)
}

func (r *CartRepository) FindByShopper(ctx context.Context, shopperID string) (*domain.Cart, error) {
	cart := &domain.Cart{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, total_cents, updated_at
		FROM carts
		WHERE shopper_id = $1
	`, shopperID).Scan(&cart.ID, &cart.ShopperID, &cart.TotalCents, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

func (r *CartRepository) findByID(ctx context.Context, cartID string) (*domain.Cart, error) {
	cart := &domain.Cart{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, shopper_id, total_cents, updated_at
		FROM carts
		WHERE id = $1
	`, cartID).Scan(&cart.ID, &cart.ShopperID, &cart.TotalCents, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

func (r *CartRepository) loadLines(ctx context.Context, cart *domain.Cart) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, title, quantity, price_cents
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at
	`, cart.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Title, &line.Quantity, &line.PriceCents); err != nil {
			return err
		}
		cart.Lines = append(cart.Lines, line)
	}

	return rows.Err()
}

// AddLine inserts a new line or increments the quantity of an existing
// one. The captured unit price of an existing line is kept; only the
// quantity grows.
func (r *CartRepository) AddLine(ctx context.Context, cartID string, line domain.CartLine) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, title, quantity, price_cents, added_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, cartID, line.ProductID, line.Title, line.Quantity, line.PriceCents)
	if err != nil {
		return nil, err
	}

	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.findByID(ctx, cartID)
}

func (r *CartRepository) SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID, quantity)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, ErrLineNotFound
	}

	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.findByID(ctx, cartID)
}

// RemoveLine deletes the matching line. Removing an absent line is a
// no-op, not an error, so retries of the same request are safe.
func (r *CartRepository) RemoveLine(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return nil, err
	}

	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.findByID(ctx, cartID)
}

func (r *CartRepository) Clear(ctx context.Context, cartID string) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1
	`, cartID)
	if err != nil {
		return nil, err
	}

	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.findByID(ctx, cartID)
}

// recomputeTotal derives the stored total from the lines inside the same
// transaction as the mutation. The stored value is a cache of the sum,
// never an independent source of truth.
func recomputeTotal(ctx context.Context, tx *sql.Tx, cartID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE carts
		SET total_cents = (
			SELECT COALESCE(SUM(quantity * price_cents), 0)
			FROM cart_items
			WHERE cart_id = $1
		), updated_at = NOW()
		WHERE id = $1
	`, cartID)
	return err
}
