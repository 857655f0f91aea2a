package store

import (
	"context"
	"database/sql"

	"commerce-core/internal/models"
)

// CreateOrder persists an order and its items in a single transaction.
// The order's ID and timestamps are filled in from the returning clause.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			order_number, customer_id, email,
			subtotal_cents, tax_cents, shipping_cents, discount_cents, total_cents,
			status, payment_status, fulfillment_status,
			coupon_id, shipping_address, billing_address, cart_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.CustomerID, order.Email,
		order.SubtotalCents, order.TaxCents, order.ShippingCents, order.DiscountCents, order.TotalCents,
		order.Status, order.PaymentStatus, order.FulfillmentStatus,
		order.CouponID, order.ShippingAddress, order.BillingAddress, order.CartID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, sku, title, price_cents, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].VariantID,
			items[i].SKU, items[i].Title, items[i].PriceCents, items[i].Quantity,
		).Scan(&items[i].ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID. Returns nil when absent.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByNumber retrieves an order by its human-facing number
func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", number)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentIntentID retrieves an order by its gateway payment intent.
// Fallback lookup for webhook events whose metadata carries no order id.
func (s *Store) GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE payment_intent_id = $1", intentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SetPaymentIntentID records the gateway payment intent opened for an order
func (s *Store) SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_intent_id = $1, updated_at = NOW() WHERE id = $2",
		intentID, orderID)
	return err
}

// ConfirmOrderPaid applies the whole payment confirmation as one
// transaction: claim the paid transition, append the tracking event,
// decrement stock once per item and complete the linked cart. The claim is
// conditional on a reconcilable payment state, so a replay no-ops and a late
// success can never pull a refunded order out of its terminal state. Returns
// whether this call won the claim and how many stock decrements it applied;
// on error the whole unit rolls back, leaving the order claimable again for
// the redelivery.
func (s *Store) ConfirmOrderPaid(ctx context.Context, orderID int64, chargeID string) (bool, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, charge_id = $4, updated_at = NOW()
		WHERE id = $1 AND payment_status IN ($5, $6)`,
		orderID, models.OrderStatusPaid, models.PaymentStatusPaid, chargeID,
		models.PaymentStatusPending, models.PaymentStatusFailed)
	if err != nil {
		return false, 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if n == 0 {
		return false, 0, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_tracking_events (order_id, status, description, created_at)
		VALUES ($1, $2, $3, NOW())`,
		orderID, models.OrderStatusPaid, "payment confirmed")
	if err != nil {
		return false, 0, err
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID); err != nil {
		return false, 0, err
	}

	decremented := 0
	for _, item := range items {
		var upd sql.Result
		if item.VariantID != nil {
			upd, err = tx.ExecContext(ctx, `
				UPDATE product_variants pv SET stock = pv.stock - $2
				FROM products p
				WHERE pv.id = $1 AND p.id = pv.product_id AND p.track_inventory`,
				*item.VariantID, item.Quantity)
		} else {
			upd, err = tx.ExecContext(ctx,
				"UPDATE products SET stock = stock - $2 WHERE id = $1 AND track_inventory",
				item.ProductID, item.Quantity)
		}
		if err != nil {
			return false, 0, err
		}
		if rows, err := upd.RowsAffected(); err == nil && rows == 1 {
			decremented++
		}
	}

	var cartID sql.NullString
	if err := tx.GetContext(ctx, &cartID,
		"SELECT cart_id FROM orders WHERE id = $1", orderID); err != nil {
		return false, 0, err
	}
	if cartID.Valid {
		if _, err := tx.ExecContext(ctx,
			"UPDATE carts SET status = $1 WHERE id = $2",
			models.CartStatusCompleted, cartID.String); err != nil {
			return false, 0, err
		}
	}

	return true, decremented, tx.Commit()
}

// MarkOrderPaymentFailed cancels a still-pending order. Conditional on the
// pending state so a late failure event cannot clobber a paid order.
func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $4`,
		orderID, models.OrderStatusCancelled, models.PaymentStatusFailed, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOrderRefunded transitions a paid order to refunded
func (s *Store) MarkOrderRefunded(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $4`,
		orderID, models.OrderStatusRefunded, models.PaymentStatusRefunded, models.PaymentStatusPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateOrderStatus sets the business status. Transition legality is checked
// by the service layer before this is called.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateFulfillmentStatus sets the fulfillment status
func (s *Store) UpdateFulfillmentStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET fulfillment_status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SetShippingAddressIfEmpty backfills the shipping address from the gateway's
// copy during sync. A populated local address is never overwritten.
func (s *Store) SetShippingAddressIfEmpty(ctx context.Context, orderID int64, address string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET shipping_address = $1, updated_at = NOW()
		WHERE id = $2 AND (shipping_address IS NULL OR shipping_address = '' OR shipping_address = '{}')`,
		address, orderID)
	return err
}
