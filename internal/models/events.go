package models

import "time"

// Event types published to the commerce event topic
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderPaymentFailed = "ORDER_PAYMENT_FAILED"
	EventTypeOrderRefunded      = "ORDER_REFUNDED"
	EventTypeCartAbandoned      = "CART_ABANDONED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created and a payment
// intent has been opened
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	TotalCents  int64  `json:"total_cents"`
}

// OrderPaidEvent published once per order when payment is confirmed
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	TotalCents  int64  `json:"total_cents"`
	ChargeID    string `json:"charge_id,omitempty"`
}

// OrderPaymentFailedEvent published when the gateway reports a failed payment
type OrderPaymentFailedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason,omitempty"`
}

// OrderRefundedEvent published when a charge is refunded
type OrderRefundedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
}

// CartAbandonedEvent published by the sweep for each newly notified cart
type CartAbandonedEvent struct {
	BaseEvent
	CartID     string `json:"cart_id"`
	Email      string `json:"email"`
	TotalCents int64  `json:"total_cents"`
	ItemCount  int    `json:"item_count"`
}
