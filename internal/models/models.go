package models

import "time"

// Product represents a product in the catalog. Price and stock here are
// authoritative at order-creation time; order items keep their own snapshot.
type Product struct {
	ID             int64     `db:"id" json:"id"`
	SKU            string    `db:"sku" json:"sku"`
	Title          string    `db:"title" json:"title"`
	PriceCents     int64     `db:"price_cents" json:"price_cents"`
	Stock          int       `db:"stock" json:"stock"`
	TrackInventory bool      `db:"track_inventory" json:"track_inventory"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ProductVariant overrides price and stock for a specific variant.
type ProductVariant struct {
	ID         int64  `db:"id" json:"id"`
	ProductID  int64  `db:"product_id" json:"product_id"`
	SKU        string `db:"sku" json:"sku"`
	Title      string `db:"title" json:"title"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Stock      int    `db:"stock" json:"stock"`
}

// Order represents a committed purchase. Monetary fields are integer cents;
// TotalCents is always derived as subtotal + tax + shipping - discount.
type Order struct {
	ID                int64     `db:"id" json:"id"`
	OrderNumber       string    `db:"order_number" json:"order_number"`
	CustomerID        *int64    `db:"customer_id" json:"customer_id,omitempty"`
	Email             string    `db:"email" json:"email"`
	SubtotalCents     int64     `db:"subtotal_cents" json:"subtotal_cents"`
	TaxCents          int64     `db:"tax_cents" json:"tax_cents"`
	ShippingCents     int64     `db:"shipping_cents" json:"shipping_cents"`
	DiscountCents     int64     `db:"discount_cents" json:"discount_cents"`
	TotalCents        int64     `db:"total_cents" json:"total_cents"`
	Status            string    `db:"status" json:"status"`
	PaymentStatus     string    `db:"payment_status" json:"payment_status"`
	FulfillmentStatus string    `db:"fulfillment_status" json:"fulfillment_status"`
	CouponID          *int64    `db:"coupon_id" json:"coupon_id,omitempty"`
	ShippingAddress   string    `db:"shipping_address" json:"shipping_address"`
	BillingAddress    string    `db:"billing_address" json:"billing_address"`
	PaymentIntentID   string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	ChargeID          string    `db:"charge_id" json:"charge_id,omitempty"`
	CartID            *string   `db:"cart_id" json:"cart_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem snapshots the product at order time, so later price changes or
// product deletion never alter a placed order.
type OrderItem struct {
	ID         int64  `db:"id" json:"id"`
	OrderID    int64  `db:"order_id" json:"order_id"`
	ProductID  int64  `db:"product_id" json:"product_id"`
	VariantID  *int64 `db:"variant_id" json:"variant_id,omitempty"`
	SKU        string `db:"sku" json:"sku"`
	Title      string `db:"title" json:"title"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Quantity   int    `db:"quantity" json:"quantity"`
}

// Coupon discount types
const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
)

// Coupon represents a discount code. Zero-valued limits mean unlimited;
// MaxDiscountCents == 0 means no cap.
type Coupon struct {
	ID               int64      `db:"id" json:"id"`
	Code             string     `db:"code" json:"code"`
	Type             string     `db:"type" json:"type"`
	Value            int64      `db:"value" json:"value"`
	MinPurchaseCents int64      `db:"min_purchase_cents" json:"min_purchase_cents"`
	MaxDiscountCents int64      `db:"max_discount_cents" json:"max_discount_cents"`
	UsageLimit       int        `db:"usage_limit" json:"usage_limit"`
	CustomerLimit    int        `db:"customer_limit" json:"customer_limit"`
	UsageCount       int        `db:"usage_count" json:"usage_count"`
	Active           bool       `db:"active" json:"active"`
	StartsAt         *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt           *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// CouponUsage is an append-only record of one successful application,
// the basis for per-customer limit enforcement.
type CouponUsage struct {
	ID         int64     `db:"id" json:"id"`
	CouponID   int64     `db:"coupon_id" json:"coupon_id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	CustomerID *int64    `db:"customer_id" json:"customer_id,omitempty"`
	UsedAt     time.Time `db:"used_at" json:"used_at"`
}

// Cart represents a mutable pre-purchase collection of items. UpdatedAt is
// the heartbeat used for abandonment detection.
type Cart struct {
	ID         string    `db:"id" json:"id"`
	CustomerID *int64    `db:"customer_id" json:"customer_id,omitempty"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
	Email      string    `db:"email" json:"email,omitempty"`
	Status     string    `db:"status" json:"status"`
	TotalCents int64     `db:"total_cents" json:"total_cents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem carries a denormalized product snapshot for display without a join.
type CartItem struct {
	ID         int64  `db:"id" json:"id"`
	CartID     string `db:"cart_id" json:"cart_id"`
	ProductID  int64  `db:"product_id" json:"product_id"`
	VariantID  *int64 `db:"variant_id" json:"variant_id,omitempty"`
	SKU        string `db:"sku" json:"sku"`
	Title      string `db:"title" json:"title"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Quantity   int    `db:"quantity" json:"quantity"`
}

// CartAbandonmentLog records the single recovery notification per cart.
// The unique cart_id key is what makes repeated sweeps no-ops.
type CartAbandonmentLog struct {
	ID         int64     `db:"id" json:"id"`
	CartID     string    `db:"cart_id" json:"cart_id"`
	Email      string    `db:"email" json:"email"`
	NotifiedAt time.Time `db:"notified_at" json:"notified_at"`
}

// TrackingEvent is the append-only audit trail of an order's fulfillment.
type TrackingEvent struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     int64     `db:"order_id" json:"order_id"`
	Status      string    `db:"status" json:"status"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent records handled gateway webhook events for idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
