package store

import (
	"context"
	"database/sql"
	"strings"

	"commerce-core/internal/models"
)

// GetCouponByCode retrieves a coupon by case-normalized code.
// Returns nil when absent.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon,
		"SELECT * FROM coupons WHERE lower(code) = $1", strings.ToLower(code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetCouponByID retrieves a coupon by ID. Returns nil when absent.
func (s *Store) GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// CountCouponUsageByCustomer counts usage rows for one coupon and customer,
// the basis for per-customer limit enforcement.
func (s *Store) CountCouponUsageByCustomer(ctx context.Context, couponID, customerID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1 AND customer_id = $2",
		couponID, customerID)
	return count, err
}

// ApplyCouponUsage records one usage atomically: a conditional counter
// increment guarded by the global limit, plus one append-only usage row.
// Returns false when the counter claim failed (limit already reached),
// with no usage row written.
func (s *Store) ApplyCouponUsage(ctx context.Context, couponID, orderID int64, customerID *int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`,
		couponID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_usage (coupon_id, order_id, customer_id, used_at)
		VALUES ($1, $2, $3, NOW())`,
		couponID, orderID, customerID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}
