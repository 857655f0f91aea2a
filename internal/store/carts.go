package store

import (
	"context"
	"database/sql"
	"time"

	"commerce-core/internal/models"
)

// CreateCart persists a new open cart
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO carts (id, customer_id, session_id, email, status, total_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		cart.ID, cart.CustomerID, cart.SessionID, cart.Email, cart.Status, cart.TotalCents,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)
}

// GetCartByID retrieves a cart by ID. Returns nil when absent.
func (s *Store) GetCartByID(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCartItems retrieves all items for a cart
func (s *Store) GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// UpsertCartItem adds an item to a cart or bumps the quantity of an
// existing line for the same product/variant.
func (s *Store) UpsertCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, variant_id, sku, title, price_cents, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cart_id, product_id, COALESCE(variant_id, 0))
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
			price_cents = EXCLUDED.price_cents
		RETURNING id`

	return s.db.QueryRowxContext(ctx, query,
		item.CartID, item.ProductID, item.VariantID,
		item.SKU, item.Title, item.PriceCents, item.Quantity,
	).Scan(&item.ID)
}

// SetCartItemQuantity replaces the quantity of one cart line
func (s *Store) SetCartItemQuantity(ctx context.Context, cartID string, itemID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3",
		quantity, itemID, cartID)
	return err
}

// DeleteCartItem removes one line from a cart
func (s *Store) DeleteCartItem(ctx context.Context, cartID string, itemID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	return err
}

// RecalcCartTotal recomputes total_cents from the current items and bumps
// updated_at, the heartbeat abandonment detection keys on.
func (s *Store) RecalcCartTotal(ctx context.Context, cartID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE carts SET
			total_cents = (SELECT COALESCE(SUM(quantity * price_cents), 0) FROM cart_items WHERE cart_id = $1),
			updated_at = NOW()
		WHERE id = $1`,
		cartID)
	return err
}

// ListStaleOpenCarts returns open carts whose heartbeat is older than the cutoff
func (s *Store) ListStaleOpenCarts(ctx context.Context, cutoff time.Time) ([]models.Cart, error) {
	var carts []models.Cart
	err := s.db.SelectContext(ctx, &carts,
		"SELECT * FROM carts WHERE status = $1 AND updated_at < $2 ORDER BY updated_at",
		models.CartStatusOpen, cutoff)
	return carts, err
}

// MarkCartAbandoned transitions a cart to abandoned, conditional on it still
// being open so the sweep never races a completing checkout into corruption.
// Returns true when this call performed the transition.
func (s *Store) MarkCartAbandoned(ctx context.Context, cartID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE carts SET status = $1 WHERE id = $2 AND status = $3",
		models.CartStatusAbandoned, cartID, models.CartStatusOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetCartStatus sets a cart's status unconditionally (checkout handoff and
// payment completion paths; legality is decided by the service layer).
func (s *Store) SetCartStatus(ctx context.Context, cartID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE carts SET status = $1 WHERE id = $2", status, cartID)
	return err
}

// InsertAbandonmentLog records the one recovery notification for a cart.
// The unique cart_id key turns repeated sweeps into no-ops; returns true
// only when this call inserted the row.
func (s *Store) InsertAbandonmentLog(ctx context.Context, cartID, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_abandonment_log (cart_id, email, notified_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cart_id) DO NOTHING`,
		cartID, email)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
