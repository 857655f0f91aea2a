package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/service"
	"commerce-core/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains the HTTP handlers for the commerce core
type Handler struct {
	orders        *service.OrderService
	reconciler    *service.Reconciler
	coupons       *service.CouponService
	carts         *service.CartService
	redis         *redisclient.Client
	webhookSecret string
	dedupTTL      time.Duration
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	reconciler *service.Reconciler,
	coupons *service.CouponService,
	carts *service.CartService,
	redis *redisclient.Client,
	webhookSecret string,
	dedupTTL time.Duration,
) *Handler {
	return &Handler{
		orders:        orders,
		reconciler:    reconciler,
		coupons:       coupons,
		carts:         carts,
		redis:         redis,
		webhookSecret: webhookSecret,
		dedupTTL:      dedupTTL,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:ref/sync", h.syncPayment)

		v1.POST("/coupons/validate", h.validateCoupon)

		v1.POST("/carts/items", h.addToCart)
		v1.GET("/carts/:id", h.getCart)
		v1.PUT("/carts/:id/items/:itemId", h.updateCartItem)
		v1.DELETE("/carts/:id/items/:itemId", h.removeFromCart)

		v1.POST("/webhooks/payment", h.paymentWebhook)

		admin := v1.Group("/admin")
		{
			admin.PUT("/orders/:id/status", h.updateOrderStatus)
			admin.POST("/carts/sweep", h.sweepCarts)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, items, events, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    order,
		"items":    items,
		"tracking": events,
	})
}

// updateOrderStatus handles admin status transitions
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// syncPayment re-queries the gateway for an order and applies the result
func (h *Handler) syncPayment(c *gin.Context) {
	result, err := h.reconciler.Sync(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type validateCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	TotalCents int64  `json:"total_cents" binding:"required,min=1"`
	CustomerID *int64 `json:"customer_id,omitempty"`
}

// validateCoupon checks eligibility and returns the discount a code grants
func (h *Handler) validateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	coupon, discount, err := h.coupons.Validate(c.Request.Context(), req.Code, req.TotalCents, req.CustomerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":           coupon.Code,
		"discount_cents": discount,
	})
}

// addToCart adds an item, creating the cart lazily
func (h *Handler) addToCart(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.carts.AddItem(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// getCart returns the cart aggregate
func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.GetCart(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItem replaces one line's quantity
func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.carts.UpdateItemQuantity(c.Request.Context(), c.Param("id"), itemID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// removeFromCart deletes one line
func (h *Handler) removeFromCart(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	view, err := h.carts.RemoveItem(c.Request.Context(), c.Param("id"), itemID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type sweepRequest struct {
	StaleAfterMinutes int `json:"stale_after_minutes" binding:"required,min=1"`
}

// sweepCarts triggers one abandonment sweep run
func (h *Handler) sweepCarts(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.carts.SweepAbandoned(c.Request.Context(),
		time.Now().UTC(), time.Duration(req.StaleAfterMinutes)*time.Minute)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// paymentWebhook verifies, deduplicates and processes one gateway event.
// A non-2xx response makes the gateway redeliver; idempotency in the
// reconciler makes that safe.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	sig := c.GetHeader("Gateway-Signature")
	if err := gateway.VerifySignature(payload, sig, h.webhookSecret, time.Now().UTC()); err != nil {
		h.logger.Warn("Rejected webhook with bad signature", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := gateway.ParseEvent(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	ctx := c.Request.Context()

	// Fast-path dedup; the durable guard lives in the reconciler.
	if event.ID != "" && h.redis != nil {
		first, err := h.redis.MarkWebhookSeen(ctx, event.ID, h.dedupTTL)
		if err == nil && !first {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	if err := h.reconciler.HandleEvent(ctx, event); err != nil {
		// Clear the fast-path key so the redelivery is not short-circuited.
		if event.ID != "" && h.redis != nil {
			_ = h.redis.GetClient().Del(ctx, "webhook:"+event.ID).Err()
		}
		if service.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Webhook processing failed",
			zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps typed domain errors to stable HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *service.ValidationError
	var ce *service.ConflictError
	var ge *service.GatewayError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{"error": ce.Message, "reason": ce.Reason})
	case errors.As(err, &ge):
		h.logger.Error("Gateway error", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
	default:
		h.logger.Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
