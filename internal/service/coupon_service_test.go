package service

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon models.Coupon
		total  int64
		want   int64
	}{
		{
			name:   "percentage floors fractional cents",
			coupon: models.Coupon{Type: models.CouponTypePercentage, Value: 10},
			total:  2505,
			want:   250,
		},
		{
			name:   "percentage clamped to max cap",
			coupon: models.Coupon{Type: models.CouponTypePercentage, Value: 50, MaxDiscountCents: 1000},
			total:  10000,
			want:   1000,
		},
		{
			name:   "percentage without cap",
			coupon: models.Coupon{Type: models.CouponTypePercentage, Value: 50},
			total:  10000,
			want:   5000,
		},
		{
			name:   "fixed amount",
			coupon: models.Coupon{Type: models.CouponTypeFixed, Value: 300},
			total:  2500,
			want:   300,
		},
		{
			name:   "fixed clamped to total",
			coupon: models.Coupon{Type: models.CouponTypeFixed, Value: 5000},
			total:  2500,
			want:   2500,
		},
		{
			name:   "zero total",
			coupon: models.Coupon{Type: models.CouponTypePercentage, Value: 10},
			total:  0,
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDiscount(&tt.coupon, tt.total))
		})
	}
}

func TestValidateEligibility(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	tests := []struct {
		name       string
		coupon     models.Coupon
		total      int64
		wantReason string
	}{
		{
			name:       "inactive",
			coupon:     models.Coupon{Code: "X", Type: models.CouponTypeFixed, Value: 100},
			total:      1000,
			wantReason: ReasonCouponInactive,
		},
		{
			name:       "not yet valid",
			coupon:     models.Coupon{Code: "X", Type: models.CouponTypeFixed, Value: 100, Active: true, StartsAt: &future},
			total:      1000,
			wantReason: ReasonCouponNotYetValid,
		},
		{
			name:       "expired",
			coupon:     models.Coupon{Code: "X", Type: models.CouponTypeFixed, Value: 100, Active: true, EndsAt: &past},
			total:      1000,
			wantReason: ReasonCouponExpired,
		},
		{
			name:       "below minimum",
			coupon:     models.Coupon{Code: "X", Type: models.CouponTypeFixed, Value: 100, Active: true, MinPurchaseCents: 5000},
			total:      1000,
			wantReason: ReasonCouponBelowMinimum,
		},
		{
			name:       "global limit reached",
			coupon:     models.Coupon{Code: "X", Type: models.CouponTypeFixed, Value: 100, Active: true, UsageLimit: 3, UsageCount: 3},
			total:      1000,
			wantReason: ReasonCouponUsageLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			tt.coupon.ID = 1
			st.coupons[1] = &tt.coupon

			svc := NewCouponService(st)
			_, _, err := svc.Validate(context.Background(), "X", tt.total, nil)
			reason, ok := ConflictReason(err)
			require.True(t, ok, "expected conflict, got %v", err)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestValidateUnknownCode(t *testing.T) {
	svc := NewCouponService(newMemStore())
	_, _, err := svc.Validate(context.Background(), "NOPE", 1000, nil)
	assert.ErrorIs(t, err, ErrCouponNotFound)
}

func TestValidateCodeIsCaseInsensitive(t *testing.T) {
	st := newMemStore()
	st.coupons[1] = &models.Coupon{ID: 1, Code: "SAVE10", Type: models.CouponTypePercentage, Value: 10, Active: true}

	svc := NewCouponService(st)
	coupon, discount, err := svc.Validate(context.Background(), "save10", 2500, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), coupon.ID)
	assert.Equal(t, int64(250), discount)
}

func TestValidateCustomerLimit(t *testing.T) {
	st := newMemStore()
	st.coupons[1] = &models.Coupon{ID: 1, Code: "ONCE", Type: models.CouponTypeFixed, Value: 100, Active: true, CustomerLimit: 1}
	customer := int64(77)
	st.couponUsage = append(st.couponUsage, models.CouponUsage{CouponID: 1, OrderID: 5, CustomerID: &customer})

	svc := NewCouponService(st)

	_, _, err := svc.Validate(context.Background(), "ONCE", 1000, &customer)
	reason, ok := ConflictReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCouponCustomerLimit, reason)

	// A different customer is unaffected.
	other := int64(88)
	_, _, err = svc.Validate(context.Background(), "ONCE", 1000, &other)
	assert.NoError(t, err)

	// Guests are never counted against a customer limit.
	_, _, err = svc.Validate(context.Background(), "ONCE", 1000, nil)
	assert.NoError(t, err)
}

func TestApplyIncrementsCounterOnce(t *testing.T) {
	st := newMemStore()
	st.coupons[1] = &models.Coupon{ID: 1, Code: "LAST", Type: models.CouponTypeFixed, Value: 100, Active: true, UsageLimit: 1}

	svc := NewCouponService(st)

	applied, err := svc.Apply(context.Background(), 1, 100, nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, st.coupons[1].UsageCount)

	// Second application loses the race against the exhausted limit.
	applied, err = svc.Apply(context.Background(), 1, 101, nil)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, st.coupons[1].UsageCount)
	assert.Len(t, st.couponUsage, 1)
}
