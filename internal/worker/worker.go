package worker

import (
	"context"
	"fmt"
	"time"

	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/notifier"
	"commerce-core/internal/service"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes commerce events and sends the matching emails.
// Email failures are logged only; the message is still committed because
// notifications never gate order or cart state.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	emails       *notifier.Client
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, emails *notifier.Client) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		emails:   emails,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	eventHandler.OnOrderRefunded(w.handleOrderRefunded)
	eventHandler.OnCartAbandoned(w.handleCartAbandoned)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	subject := fmt.Sprintf("Order %s received", event.OrderNumber)
	body := fmt.Sprintf("<p>Thanks! We received your order <b>%s</b> for %s.</p>",
		event.OrderNumber, formatCents(event.TotalCents))
	w.send(ctx, event.Email, subject, body)
	return nil
}

func (w *NotificationWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	subject := fmt.Sprintf("Payment received for order %s", event.OrderNumber)
	body := fmt.Sprintf("<p>Your payment of %s for order <b>%s</b> is confirmed.</p>",
		formatCents(event.TotalCents), event.OrderNumber)
	w.send(ctx, event.Email, subject, body)
	return nil
}

func (w *NotificationWorker) handleOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	subject := fmt.Sprintf("Refund issued for order %s", event.OrderNumber)
	body := fmt.Sprintf("<p>Your order <b>%s</b> has been refunded.</p>", event.OrderNumber)
	w.send(ctx, event.Email, subject, body)
	return nil
}

func (w *NotificationWorker) handleCartAbandoned(ctx context.Context, event *models.CartAbandonedEvent) error {
	subject := "You left something in your cart"
	body := fmt.Sprintf("<p>Your cart with %d item(s) worth %s is waiting for you.</p>",
		event.ItemCount, formatCents(event.TotalCents))
	w.send(ctx, event.Email, subject, body)
	return nil
}

func (w *NotificationWorker) send(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if err := w.emails.SendEmail(ctx, to, subject, body); err != nil {
		w.logger.Error("Failed to send email",
			zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return
	}
	util.EmailsSentTotal.Inc()
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// Locker guards the sweep against concurrent instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// SweepWorker runs the cart abandonment sweep on a fixed interval. The sweep
// itself is a pure function of the injected time, so the worker is the only
// place wall clocks appear.
type SweepWorker struct {
	carts      *service.CartService
	locker     Locker
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewSweepWorker creates a new abandonment sweep worker
func NewSweepWorker(carts *service.CartService, locker Locker, interval, staleAfter time.Duration) *SweepWorker {
	return &SweepWorker{
		carts:      carts,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (sw *SweepWorker) Start(ctx context.Context) error {
	sw.logger.Info("Starting abandonment sweep worker",
		zap.Duration("interval", sw.interval),
		zap.Duration("stale_after", sw.staleAfter))

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Sweep worker context cancelled, stopping")
			return ctx.Err()
		case <-ticker.C:
			sw.runOnce(ctx)
		}
	}
}

func (sw *SweepWorker) runOnce(ctx context.Context) {
	// Duplicate sweeps are safe (worst case a duplicate notification), so
	// the lock is an optimization, not a correctness requirement.
	acquired, err := sw.locker.AcquireLock(ctx, "cart-sweep", sw.interval)
	if err != nil {
		sw.logger.Error("Failed to acquire sweep lock", zap.Error(err))
		return
	}
	if !acquired {
		sw.logger.Debug("Sweep lock held elsewhere, skipping run")
		return
	}
	defer func() {
		if err := sw.locker.ReleaseLock(ctx, "cart-sweep"); err != nil {
			sw.logger.Error("Failed to release sweep lock", zap.Error(err))
		}
	}()

	if _, err := sw.carts.SweepAbandoned(ctx, time.Now().UTC(), sw.staleAfter); err != nil {
		sw.logger.Error("Abandonment sweep failed", zap.Error(err))
	}
}
