package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders confirmed paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment gateway webhook events by type and outcome",
	}, []string{"type", "result"})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_decrements_total",
		Help: "Total number of inventory decrements applied at payment confirmation",
	})

	CouponsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_applied_total",
		Help: "Total number of coupon usages recorded",
	})

	CouponsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupons_rejected_total",
		Help: "Total number of coupon validations rejected",
	}, []string{"reason"})

	CartsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carts_abandoned_total",
		Help: "Total number of carts marked abandoned by the sweep",
	})

	CartsNotifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carts_recovery_notified_total",
		Help: "Total number of abandonment recovery notifications triggered",
	})

	EmailsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_emails_sent_total",
		Help: "Total number of notification emails sent",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
