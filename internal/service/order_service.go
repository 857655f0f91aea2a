package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pricing holds the order-level amounts computed server side
type Pricing struct {
	TaxRateBps        int64
	FlatShippingCents int64
	Currency          string
}

// OrderService owns order creation and admin status transitions
type OrderService struct {
	orders    OrderStore
	products  ProductStore
	carts     CartStore
	coupons   *CouponService
	gateway   PaymentGateway
	publisher EventPublisher
	pricing   Pricing
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	products ProductStore,
	carts CartStore,
	coupons *CouponService,
	gateway PaymentGateway,
	publisher EventPublisher,
	pricing Pricing,
) *OrderService {
	return &OrderService{
		orders:    orders,
		products:  products,
		carts:     carts,
		coupons:   coupons,
		gateway:   gateway,
		publisher: publisher,
		pricing:   pricing,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. Item prices are
// never taken from the request; the catalog is authoritative.
type CreateOrderRequest struct {
	CustomerID      *int64             `json:"customer_id,omitempty"`
	Email           string             `json:"email" binding:"required,email"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress json.RawMessage    `json:"shipping_address" binding:"required"`
	BillingAddress  json.RawMessage    `json:"billing_address,omitempty"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	CartID          *string            `json:"cart_id,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CreateOrderResponse carries the created aggregate and the client secret the
// buyer needs to complete payment.
type CreateOrderResponse struct {
	Order        *models.Order      `json:"order"`
	Items        []models.OrderItem `json:"items"`
	ClientSecret string             `json:"client_secret,omitempty"`
}

// CreateOrder creates an order from authoritative catalog prices, validates
// any coupon, persists order+items atomically and opens a payment intent.
// Payment is asynchronous: the order stays pending until the gateway
// notifies, which can take minutes or never happen.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	items, subtotal, err := s.buildItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failReason(err)).Inc()
		return nil, err
	}

	var couponID *int64
	var discount int64
	if req.CouponCode != "" {
		coupon, d, err := s.coupons.Validate(ctx, req.CouponCode, subtotal, req.CustomerID)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("invalid_coupon").Inc()
			return nil, err
		}
		couponID = &coupon.ID
		discount = d
	}

	tax := subtotal * s.pricing.TaxRateBps / 10000
	shipping := s.pricing.FlatShippingCents
	total := subtotal + tax + shipping - discount

	order := &models.Order{
		OrderNumber:       newOrderNumber(),
		CustomerID:        req.CustomerID,
		Email:             req.Email,
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		ShippingCents:     shipping,
		DiscountCents:     discount,
		TotalCents:        total,
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		FulfillmentStatus: models.FulfillmentUnfulfilled,
		CouponID:          couponID,
		ShippingAddress:   string(req.ShippingAddress),
		BillingAddress:    string(req.BillingAddress),
		CartID:            req.CartID,
	}

	if err := s.orders.CreateOrder(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_cents", order.TotalCents))

	if err := s.orders.InsertTrackingEvent(ctx, order.ID, models.OrderStatusPending, "order created"); err != nil {
		s.logger.Error("Failed to record tracking event", zap.Error(err))
	}

	if couponID != nil {
		if _, err := s.coupons.Apply(ctx, *couponID, order.ID, req.CustomerID); err != nil {
			s.logger.Error("Failed to record coupon usage",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	// Hand the cart off before any payment activity so the abandonment
	// sweep can no longer touch it.
	if req.CartID != nil {
		if err := s.carts.SetCartStatus(ctx, *req.CartID, models.CartStatusRecovered); err != nil {
			s.logger.Error("Failed to transition cart on checkout",
				zap.String("cart_id", *req.CartID), zap.Error(err))
		}
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, order.TotalCents, s.pricing.Currency, map[string]string{
		"order_id":     strconv.FormatInt(order.ID, 10),
		"order_number": order.OrderNumber,
	})
	if err != nil {
		// The order stays pending; it can be retried through sync or a
		// fresh checkout, but is never assumed paid.
		util.OrdersFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, &GatewayError{Op: "create_payment_intent", Err: err}
	}

	if err := s.orders.SetPaymentIntentID(ctx, order.ID, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}
	order.PaymentIntentID = intent.ID

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		TotalCents:  order.TotalCents,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		Order:        order,
		Items:        items,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// buildItems resolves each requested line against the catalog, snapshotting
// sku/title/price and running the advisory stock check.
func (s *OrderService) buildItems(ctx context.Context, reqs []OrderItemRequest) ([]models.OrderItem, int64, error) {
	items := make([]models.OrderItem, 0, len(reqs))
	var subtotal int64

	for _, r := range reqs {
		product, err := s.products.GetProductByID(ctx, r.ProductID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to look up product %d: %w", r.ProductID, err)
		}
		if product == nil {
			return nil, 0, fmt.Errorf("product %d: %w", r.ProductID, ErrProductNotFound)
		}

		sku := product.SKU
		title := product.Title
		price := product.PriceCents
		stock := product.Stock

		if r.VariantID != nil {
			variant, err := s.products.GetVariantByID(ctx, *r.VariantID)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to look up variant %d: %w", *r.VariantID, err)
			}
			if variant == nil || variant.ProductID != product.ID {
				return nil, 0, fmt.Errorf("variant %d of product %d: %w", *r.VariantID, r.ProductID, ErrVariantNotFound)
			}
			sku = variant.SKU
			title = fmt.Sprintf("%s - %s", product.Title, variant.Title)
			price = variant.PriceCents
			stock = variant.Stock
		}

		// Advisory check only; the permanent decrement happens at payment
		// confirmation. Concurrent pending orders can oversell, which is an
		// accepted policy handled by manual backorder.
		if product.TrackInventory && r.Quantity > stock {
			return nil, 0, NewConflict(ReasonOutOfStock,
				"product %s has %d in stock, %d requested", sku, stock, r.Quantity)
		}

		items = append(items, models.OrderItem{
			ProductID:  r.ProductID,
			VariantID:  r.VariantID,
			SKU:        sku,
			Title:      title,
			PriceCents: price,
			Quantity:   r.Quantity,
		})
		subtotal += price * int64(r.Quantity)
	}

	return items, subtotal, nil
}

// UpdateStatusRequest is the admin request to move an order through its
// lifecycle. Either field may be empty to leave it unchanged.
type UpdateStatusRequest struct {
	Status            string `json:"status,omitempty"`
	FulfillmentStatus string `json:"fulfillment_status,omitempty"`
}

// UpdateStatus validates and applies an admin-requested transition. Illegal
// transitions are conflicts; fulfillment changes append a tracking event.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, req *UpdateStatusRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if req.Status != "" && req.Status != order.Status {
		if !models.CanTransition(order.Status, req.Status) {
			return nil, NewConflict(ReasonInvalidTransition,
				"cannot move order from %s to %s", order.Status, req.Status)
		}
		if err := s.orders.UpdateOrderStatus(ctx, orderID, req.Status); err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status = req.Status
	}

	if req.FulfillmentStatus != "" && req.FulfillmentStatus != order.FulfillmentStatus {
		if !models.CanTransitionFulfillment(order.FulfillmentStatus, req.FulfillmentStatus) {
			return nil, NewConflict(ReasonInvalidTransition,
				"cannot move fulfillment from %s to %s", order.FulfillmentStatus, req.FulfillmentStatus)
		}
		if err := s.orders.UpdateFulfillmentStatus(ctx, orderID, req.FulfillmentStatus); err != nil {
			return nil, fmt.Errorf("failed to update fulfillment status: %w", err)
		}
		if err := s.orders.InsertTrackingEvent(ctx, orderID, req.FulfillmentStatus, ""); err != nil {
			s.logger.Error("Failed to record tracking event", zap.Error(err))
		}
		order.FulfillmentStatus = req.FulfillmentStatus
	}

	return order, nil
}

// GetOrder retrieves an order aggregate with items and tracking trail
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, []models.TrackingEvent, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	if order == nil {
		return nil, nil, nil, ErrOrderNotFound
	}

	items, err := s.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	events, err := s.orders.ListTrackingEvents(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	return order, items, events, nil
}

// newOrderNumber generates a sortable, collision-free human order number:
// a UTC second prefix plus a uuid fragment.
func newOrderNumber() string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102150405"), frag)
}

func failReason(err error) string {
	if reason, ok := ConflictReason(err); ok {
		return reason
	}
	if IsNotFound(err) {
		return "not_found"
	}
	return "error"
}
