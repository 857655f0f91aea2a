package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler turns external gateway notifications, delivered at least once
// and sometimes not at all, into idempotent order transitions. The
// idempotency key is the gateway payment intent id; the guard is a
// conditional claim applied inside a single store transaction.
type Reconciler struct {
	orders    OrderStore
	events    EventRecorder
	gateway   PaymentGateway
	publisher EventPublisher
	logger    *zap.Logger
}

// NewReconciler creates a new payment reconciler
func NewReconciler(
	orders OrderStore,
	events EventRecorder,
	gw PaymentGateway,
	publisher EventPublisher,
) *Reconciler {
	return &Reconciler{
		orders:    orders,
		events:    events,
		gateway:   gw,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleEvent processes one verified webhook event. Safe to call any number
// of times for the same event: a replay either short-circuits on the
// processed-events record or no-ops on the conditional state claim.
func (r *Reconciler) HandleEvent(ctx context.Context, event *gateway.Event) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleEvent")
	defer span.End()

	// Dispatch on the type before touching the store: an event type this
	// service does not handle is ignored whatever its payload references.
	switch event.Type {
	case gateway.EventPaymentSucceeded, gateway.EventPaymentFailed, gateway.EventChargeRefunded:
	default:
		r.logger.Warn("Unhandled webhook event type", zap.String("type", event.Type))
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		return nil
	}

	if event.ID != "" {
		processed, err := r.events.IsEventProcessed(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			r.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
			util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			return nil
		}
	}

	order, err := r.resolveOrder(ctx, event.Data.PaymentIntentID, event.Data.Metadata)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return err
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		_, err = r.confirm(ctx, order, event.Data.ChargeID)
	case gateway.EventPaymentFailed:
		err = r.fail(ctx, order, event.Data.Reason)
	case gateway.EventChargeRefunded:
		err = r.refund(ctx, order)
	}
	if err != nil {
		// Webhook redelivery retries the whole transition; idempotency makes
		// that safe, so this error must propagate as a non-2xx.
		util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return err
	}

	if event.ID != "" {
		if err := r.events.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
			r.logger.Error("Failed to mark event processed", zap.Error(err))
		}
	}
	util.WebhookEventsTotal.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

// ConfirmPayment applies the payment-succeeded transition for a gateway
// payment id, resolving the order by the payment intent column. Idempotent;
// safe to call N times for one payment.
func (r *Reconciler) ConfirmPayment(ctx context.Context, paymentIntentID, chargeID string) (*models.Order, error) {
	order, err := r.resolveOrder(ctx, paymentIntentID, nil)
	if err != nil {
		return nil, err
	}
	return r.confirm(ctx, order, chargeID)
}

// resolveOrder finds the order for an intent: metadata order id first,
// falling back to the payment_intent_id column when metadata is absent.
func (r *Reconciler) resolveOrder(ctx context.Context, paymentIntentID string, metadata map[string]string) (*models.Order, error) {
	if raw, ok := metadata["order_id"]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			order, err := r.orders.GetOrderByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to look up order %d: %w", id, err)
			}
			if order != nil {
				return order, nil
			}
		}
	}

	order, err := r.orders.GetOrderByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by intent %s: %w", paymentIntentID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("payment intent %s: %w", paymentIntentID, ErrOrderNotFound)
	}
	return order, nil
}

// confirm performs the one logical unit of payment confirmation: claim the
// paid transition, append the tracking event, permanently decrement inventory
// once per item, complete the linked cart, publish the paid event. The store
// applies the state changes as one transaction; on error nothing sticks and
// the webhook redelivery retries the whole unit.
func (r *Reconciler) confirm(ctx context.Context, order *models.Order, chargeID string) (*models.Order, error) {
	claimed, decremented, err := r.orders.ConfirmOrderPaid(ctx, order.ID, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm order paid: %w", err)
	}
	if !claimed {
		// Already paid or refunded: duplicate or late delivery, not an error.
		r.logger.Info("Order not reconcilable to paid, ignoring confirmation",
			zap.Int64("order_id", order.ID),
			zap.String("payment_status", order.PaymentStatus))
		return order, nil
	}

	order.Status = models.OrderStatusPaid
	order.PaymentStatus = models.PaymentStatusPaid
	order.ChargeID = chargeID
	util.OrdersPaidTotal.Inc()
	util.StockDecrementsTotal.Add(float64(decremented))

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		TotalCents:  order.TotalCents,
		ChargeID:    chargeID,
	}
	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	r.logger.Info("Order paid",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("charge_id", chargeID))
	return order, nil
}

// fail cancels a pending order on a failed payment. Nothing was ever
// decremented, so inventory is untouched.
func (r *Reconciler) fail(ctx context.Context, order *models.Order, reason string) error {
	claimed, err := r.orders.MarkOrderPaymentFailed(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if !claimed {
		r.logger.Info("Order not pending, ignoring payment failure",
			zap.Int64("order_id", order.ID),
			zap.String("payment_status", order.PaymentStatus))
		return nil
	}

	if err := r.orders.InsertTrackingEvent(ctx, order.ID, models.OrderStatusCancelled, "payment failed"); err != nil {
		r.logger.Error("Failed to record tracking event", zap.Error(err))
	}

	event := &models.OrderPaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaymentFailed,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      reason,
	}
	if err := r.publisher.PublishOrderPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaymentFailed event", zap.Error(err))
	}

	r.logger.Warn("Order cancelled on failed payment",
		zap.Int64("order_id", order.ID), zap.String("reason", reason))
	return nil
}

// refund transitions a paid order to refunded. Inventory is deliberately not
// restored; restocking is a manual decision.
func (r *Reconciler) refund(ctx context.Context, order *models.Order) error {
	claimed, err := r.orders.MarkOrderRefunded(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}
	if !claimed {
		r.logger.Info("Order not paid, ignoring refund notification",
			zap.Int64("order_id", order.ID))
		return nil
	}

	if err := r.orders.InsertTrackingEvent(ctx, order.ID, models.OrderStatusRefunded, "charge refunded"); err != nil {
		r.logger.Error("Failed to record tracking event", zap.Error(err))
	}

	event := &models.OrderRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderRefunded,
			Timestamp: time.Now().UTC(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
	}
	if err := r.publisher.PublishOrderRefunded(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}

	r.logger.Info("Order refunded", zap.Int64("order_id", order.ID))
	return nil
}

// SyncResult reports both sides of a manual reconciliation
type SyncResult struct {
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	OrderStatus   string `json:"order_status"`
	GatewayStatus string `json:"gateway_status"`
}

// Sync re-queries the gateway for an order whose webhook may have been missed
// and applies the same idempotent transition. The gateway's shipping address
// backfills the local one only when the local one is empty.
func (r *Reconciler) Sync(ctx context.Context, orderRef string) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Sync")
	defer span.End()

	order, err := r.lookupByRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if order.PaymentIntentID == "" {
		return nil, &ValidationError{Field: "order", Message: "order has no payment intent to sync against"}
	}

	intent, err := r.gateway.RetrievePaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return nil, &GatewayError{Op: "retrieve_payment_intent", Err: err}
	}

	if len(intent.ShippingAddress) > 0 {
		if err := r.orders.SetShippingAddressIfEmpty(ctx, order.ID, string(intent.ShippingAddress)); err != nil {
			r.logger.Error("Failed to backfill shipping address", zap.Error(err))
		}
	}

	switch intent.Status {
	case gateway.IntentStatusSucceeded:
		order, err = r.confirm(ctx, order, intent.ChargeID)
	case gateway.IntentStatusFailed:
		err = r.fail(ctx, order, "reported by sync")
	case gateway.IntentStatusRefunded:
		err = r.refund(ctx, order)
	}
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees the post-transition state.
	synced, err := r.orders.GetOrderByID(ctx, order.ID)
	if err != nil || synced == nil {
		synced = order
	}

	return &SyncResult{
		OrderID:       synced.ID,
		OrderNumber:   synced.OrderNumber,
		OrderStatus:   synced.Status,
		GatewayStatus: intent.Status,
	}, nil
}

// lookupByRef accepts a numeric order id, a human order number, or a gateway
// payment intent id.
func (r *Reconciler) lookupByRef(ctx context.Context, ref string) (*models.Order, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		order, err := r.orders.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if strings.HasPrefix(ref, "ORD-") {
		order, err := r.orders.GetOrderByNumber(ctx, ref)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	order, err := r.orders.GetOrderByPaymentIntentID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%s: %w", ref, ErrOrderNotFound)
	}
	return order, nil
}
