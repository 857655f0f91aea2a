package service

import (
	"context"
	"fmt"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// CouponService validates and applies discount codes
type CouponService struct {
	coupons CouponStore
	logger  *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(coupons CouponStore) *CouponService {
	return &CouponService{
		coupons: coupons,
		logger:  util.GetLogger(),
	}
}

// Validate checks a code against the purchase total, the validity window and
// both usage limits, and returns the coupon with the discount it would grant.
func (cs *CouponService) Validate(ctx context.Context, code string, totalCents int64, customerID *int64) (*models.Coupon, int64, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Validate")
	defer span.End()

	coupon, err := cs.coupons.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up coupon: %w", err)
	}
	if coupon == nil {
		return nil, 0, ErrCouponNotFound
	}

	now := time.Now().UTC()
	if !coupon.Active {
		return nil, 0, NewConflict(ReasonCouponInactive, "coupon %s is not active", coupon.Code)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, 0, NewConflict(ReasonCouponNotYetValid, "coupon %s is not yet valid", coupon.Code)
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return nil, 0, NewConflict(ReasonCouponExpired, "coupon %s has expired", coupon.Code)
	}
	if totalCents < coupon.MinPurchaseCents {
		return nil, 0, NewConflict(ReasonCouponBelowMinimum,
			"order total %d below coupon minimum %d", totalCents, coupon.MinPurchaseCents)
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return nil, 0, NewConflict(ReasonCouponUsageLimit, "coupon %s usage limit reached", coupon.Code)
	}
	if customerID != nil && coupon.CustomerLimit > 0 {
		used, err := cs.coupons.CountCouponUsageByCustomer(ctx, coupon.ID, *customerID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count coupon usage: %w", err)
		}
		if used >= coupon.CustomerLimit {
			return nil, 0, NewConflict(ReasonCouponCustomerLimit,
				"coupon %s already used by this customer", coupon.Code)
		}
	}

	return coupon, ComputeDiscount(coupon, totalCents), nil
}

// ComputeDiscount returns the discount a coupon grants on a total.
// Percentage coupons floor and clamp to the max cap; fixed coupons clamp to
// the total. The result never exceeds totalCents.
func ComputeDiscount(coupon *models.Coupon, totalCents int64) int64 {
	var discount int64
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = totalCents * coupon.Value / 100
		if coupon.MaxDiscountCents > 0 && discount > coupon.MaxDiscountCents {
			discount = coupon.MaxDiscountCents
		}
	case models.CouponTypeFixed:
		discount = coupon.Value
	}
	if discount > totalCents {
		discount = totalCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Apply records one usage: a CouponUsage row plus the atomic counter
// increment. Called only after the order has been created, never
// speculatively, so abandoned checkouts do not consume allowance. Returns
// false when a concurrent application exhausted the global limit first.
func (cs *CouponService) Apply(ctx context.Context, couponID, orderID int64, customerID *int64) (bool, error) {
	applied, err := cs.coupons.ApplyCouponUsage(ctx, couponID, orderID, customerID)
	if err != nil {
		return false, fmt.Errorf("failed to apply coupon: %w", err)
	}
	if !applied {
		cs.logger.Warn("Coupon usage limit hit between validation and apply",
			zap.Int64("coupon_id", couponID),
			zap.Int64("order_id", orderID))
		util.CouponsRejectedTotal.WithLabelValues(ReasonCouponUsageLimit).Inc()
		return false, nil
	}
	util.CouponsAppliedTotal.Inc()
	return true, nil
}
