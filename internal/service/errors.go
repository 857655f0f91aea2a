package service

import (
	"errors"
	"fmt"
)

// Not-found sentinels, surfaced to the boundary as 404s
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCartNotFound    = errors.New("cart not found")
)

// Conflict reason codes, stable strings the caller can branch on
const (
	ReasonOutOfStock          = "out_of_stock"
	ReasonInvalidTransition   = "invalid_transition"
	ReasonCartNotOpen         = "cart_not_open"
	ReasonCouponInactive      = "coupon_inactive"
	ReasonCouponNotYetValid   = "coupon_not_yet_valid"
	ReasonCouponExpired       = "coupon_expired"
	ReasonCouponBelowMinimum  = "coupon_below_minimum"
	ReasonCouponUsageLimit    = "coupon_usage_limit_reached"
	ReasonCouponCustomerLimit = "coupon_customer_limit_reached"
)

// ConflictError reports an illegal state transition, insufficient stock, or a
// coupon eligibility failure. Reason distinguishes the cases for callers.
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewConflict creates a ConflictError with a formatted message
func NewConflict(reason, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ConflictReason extracts the reason code when err is a ConflictError
func ConflictReason(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Reason, true
	}
	return "", false
}

// ValidationError reports malformed input, recovered at the boundary and
// never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GatewayError wraps a timeout or non-2xx from the payment gateway
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is one of the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrCartNotFound)
}
