package service

import (
	"context"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/models"
)

// ProductStore is the catalog/inventory seam the services depend on
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetVariantByID(ctx context.Context, id int64) (*models.ProductVariant, error)
}

// OrderStore is the order aggregate seam
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error
	ConfirmOrderPaid(ctx context.Context, orderID int64, chargeID string) (bool, int, error)
	MarkOrderPaymentFailed(ctx context.Context, orderID int64) (bool, error)
	MarkOrderRefunded(ctx context.Context, orderID int64) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	UpdateFulfillmentStatus(ctx context.Context, orderID int64, status string) error
	SetShippingAddressIfEmpty(ctx context.Context, orderID int64, address string) error
	InsertTrackingEvent(ctx context.Context, orderID int64, status, description string) error
	ListTrackingEvents(ctx context.Context, orderID int64) ([]models.TrackingEvent, error)
}

// CouponStore is the coupon seam
type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error)
	CountCouponUsageByCustomer(ctx context.Context, couponID, customerID int64) (int, error)
	ApplyCouponUsage(ctx context.Context, couponID, orderID int64, customerID *int64) (bool, error)
}

// CartStore is the cart lifecycle seam
type CartStore interface {
	CreateCart(ctx context.Context, cart *models.Cart) error
	GetCartByID(ctx context.Context, id string) (*models.Cart, error)
	GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	UpsertCartItem(ctx context.Context, item *models.CartItem) error
	SetCartItemQuantity(ctx context.Context, cartID string, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID string, itemID int64) error
	RecalcCartTotal(ctx context.Context, cartID string) error
	ListStaleOpenCarts(ctx context.Context, cutoff time.Time) ([]models.Cart, error)
	MarkCartAbandoned(ctx context.Context, cartID string) (bool, error)
	SetCartStatus(ctx context.Context, cartID, status string) error
	InsertAbandonmentLog(ctx context.Context, cartID, email string) (bool, error)
}

// EventRecorder provides durable webhook-event idempotency records
type EventRecorder interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// PaymentGateway abstracts the external payment provider
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*gateway.PaymentIntent, error)
}

// EventPublisher publishes domain events. Publishing is fire-and-forget;
// failures are logged at the call site and never roll back state.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
	PublishCartAbandoned(ctx context.Context, event *models.CartAbandonedEvent) error
}
