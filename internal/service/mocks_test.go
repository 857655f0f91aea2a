package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"commerce-core/internal/gateway"
	"commerce-core/internal/models"
)

// memStore is an in-memory stand-in for the sqlx store, reproducing the
// conditional-update semantics the services rely on.
type memStore struct {
	mu sync.Mutex

	products map[int64]*models.Product
	variants map[int64]*models.ProductVariant

	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	tracking   map[int64][]models.TrackingEvent

	coupons     map[int64]*models.Coupon
	couponUsage []models.CouponUsage

	carts      map[string]*models.Cart
	cartItems  map[string][]models.CartItem
	abandonLog map[string]bool

	processed map[string]string

	nextID int64
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[int64]*models.Product),
		variants:   make(map[int64]*models.ProductVariant),
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64][]models.OrderItem),
		tracking:   make(map[int64][]models.TrackingEvent),
		coupons:    make(map[int64]*models.Coupon),
		carts:      make(map[string]*models.Cart),
		cartItems:  make(map[string][]models.CartItem),
		abandonLog: make(map[string]bool),
		processed:  make(map[string]string),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

// --- ProductStore ---

func (m *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetVariantByID(_ context.Context, id int64) (*models.ProductVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

// --- OrderStore ---

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.ID] = &cp
	for i := range items {
		items[i].ID = m.id()
		items[i].OrderID = order.ID
	}
	m.orderItems[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrderByPaymentIntentID(_ context.Context, intentID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentIntentID == intentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderItem(nil), m.orderItems[orderID]...), nil
}

func (m *memStore) SetPaymentIntentID(_ context.Context, orderID int64, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.PaymentIntentID = intentID
	}
	return nil
}

func (m *memStore) ConfirmOrderPaid(_ context.Context, orderID int64, chargeID string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, 0, errors.New("order missing")
	}
	if o.PaymentStatus != models.PaymentStatusPending && o.PaymentStatus != models.PaymentStatusFailed {
		return false, 0, nil
	}
	o.Status = models.OrderStatusPaid
	o.PaymentStatus = models.PaymentStatusPaid
	o.ChargeID = chargeID
	m.tracking[orderID] = append(m.tracking[orderID], models.TrackingEvent{
		ID:          m.id(),
		OrderID:     orderID,
		Status:      models.OrderStatusPaid,
		Description: "payment confirmed",
		CreatedAt:   time.Now().UTC(),
	})
	decremented := 0
	for _, item := range m.orderItems[orderID] {
		p, ok := m.products[item.ProductID]
		if !ok || !p.TrackInventory {
			continue
		}
		if item.VariantID != nil {
			if v, ok := m.variants[*item.VariantID]; ok {
				v.Stock -= item.Quantity
				decremented++
			}
			continue
		}
		p.Stock -= item.Quantity
		decremented++
	}
	if o.CartID != nil {
		if c, ok := m.carts[*o.CartID]; ok {
			c.Status = models.CartStatusCompleted
		}
	}
	return true, decremented, nil
}

func (m *memStore) MarkOrderPaymentFailed(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	o.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

func (m *memStore) MarkOrderRefunded(_ context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != models.PaymentStatusPaid {
		return false, nil
	}
	o.Status = models.OrderStatusRefunded
	o.PaymentStatus = models.PaymentStatusRefunded
	return true, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = status
	}
	return nil
}

func (m *memStore) UpdateFulfillmentStatus(_ context.Context, orderID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.FulfillmentStatus = status
	}
	return nil
}

func (m *memStore) SetShippingAddressIfEmpty(_ context.Context, orderID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		if o.ShippingAddress == "" || o.ShippingAddress == "{}" {
			o.ShippingAddress = address
		}
	}
	return nil
}

func (m *memStore) InsertTrackingEvent(_ context.Context, orderID int64, status, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking[orderID] = append(m.tracking[orderID], models.TrackingEvent{
		ID:          m.id(),
		OrderID:     orderID,
		Status:      status,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (m *memStore) ListTrackingEvents(_ context.Context, orderID int64) ([]models.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TrackingEvent(nil), m.tracking[orderID]...), nil
}

// --- CouponStore ---

func (m *memStore) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coupons {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetCouponByID(_ context.Context, id int64) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CountCouponUsageByCustomer(_ context.Context, couponID, customerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, u := range m.couponUsage {
		if u.CouponID == couponID && u.CustomerID != nil && *u.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ApplyCouponUsage(_ context.Context, couponID, orderID int64, customerID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[couponID]
	if !ok {
		return false, errors.New("coupon missing")
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	m.couponUsage = append(m.couponUsage, models.CouponUsage{
		ID:         m.id(),
		CouponID:   couponID,
		OrderID:    orderID,
		CustomerID: customerID,
		UsedAt:     time.Now().UTC(),
	})
	return true, nil
}

// --- CartStore ---

func (m *memStore) CreateCart(_ context.Context, cart *models.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart.CreatedAt = time.Now().UTC()
	cart.UpdatedAt = cart.CreatedAt
	cp := *cart
	m.carts[cart.ID] = &cp
	return nil
}

func (m *memStore) GetCartByID(_ context.Context, id string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCartItems(_ context.Context, cartID string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CartItem(nil), m.cartItems[cartID]...), nil
}

func (m *memStore) UpsertCartItem(_ context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.cartItems[item.CartID]
	for i := range items {
		if items[i].ProductID == item.ProductID && variantEq(items[i].VariantID, item.VariantID) {
			items[i].Quantity += item.Quantity
			items[i].PriceCents = item.PriceCents
			item.ID = items[i].ID
			return nil
		}
	}
	item.ID = m.id()
	m.cartItems[item.CartID] = append(items, *item)
	return nil
}

func (m *memStore) SetCartItemQuantity(_ context.Context, cartID string, itemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.cartItems[cartID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = quantity
		}
	}
	return nil
}

func (m *memStore) DeleteCartItem(_ context.Context, cartID string, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.cartItems[cartID]
	out := items[:0]
	for _, it := range items {
		if it.ID != itemID {
			out = append(out, it)
		}
	}
	m.cartItems[cartID] = out
	return nil
}

func (m *memStore) RecalcCartTotal(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return errors.New("cart missing")
	}
	var total int64
	for _, it := range m.cartItems[cartID] {
		total += int64(it.Quantity) * it.PriceCents
	}
	c.TotalCents = total
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) ListStaleOpenCarts(_ context.Context, cutoff time.Time) ([]models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Cart
	for _, c := range m.carts {
		if c.Status == models.CartStatusOpen && c.UpdatedAt.Before(cutoff) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) MarkCartAbandoned(_ context.Context, cartID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok || c.Status != models.CartStatusOpen {
		return false, nil
	}
	c.Status = models.CartStatusAbandoned
	return true, nil
}

func (m *memStore) SetCartStatus(_ context.Context, cartID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[cartID]; ok {
		c.Status = status
	}
	return nil
}

func (m *memStore) InsertAbandonmentLog(_ context.Context, cartID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.abandonLog[cartID] {
		return false, nil
	}
	m.abandonLog[cartID] = true
	return true, nil
}

// --- EventRecorder ---

func (m *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *memStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[eventID] = eventType
	return nil
}

func variantEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fakeGateway returns canned intents and records calls
type fakeGateway struct {
	mu          sync.Mutex
	created     []*gateway.PaymentIntent
	retrieveMap map[string]*gateway.PaymentIntent
	createErr   error
	retrieveErr error
	nextIntent  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{retrieveMap: make(map[string]*gateway.PaymentIntent)}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amountCents int64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextIntent++
	id := fmt.Sprintf("pi_test_%d", g.nextIntent)
	intent := &gateway.PaymentIntent{
		ID:           id,
		ClientSecret: "secret_" + id,
		Status:       gateway.IntentStatusPending,
		AmountCents:  amountCents,
		Currency:     currency,
		Metadata:     metadata,
	}
	g.created = append(g.created, intent)
	return intent, nil
}

func (g *fakeGateway) RetrievePaymentIntent(_ context.Context, intentID string) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	intent, ok := g.retrieveMap[intentID]
	if !ok {
		return nil, errors.New("intent not found")
	}
	return intent, nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	paid      []*models.OrderPaidEvent
	failed    []*models.OrderPaymentFailedEvent
	refunded  []*models.OrderRefundedEvent
	abandoned []*models.CartAbandonedEvent
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

func (p *fakePublisher) PublishOrderPaymentFailed(_ context.Context, e *models.OrderPaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func (p *fakePublisher) PublishOrderRefunded(_ context.Context, e *models.OrderRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, e)
	return nil
}

func (p *fakePublisher) PublishCartAbandoned(_ context.Context, e *models.CartAbandonedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = append(p.abandoned, e)
	return nil
}
