package service

import (
	"context"
	"fmt"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartService tracks the open -> abandoned -> recovered/completed cart
// lifecycle and runs the abandonment sweep.
type CartService struct {
	carts     CartStore
	products  ProductStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, products ProductStore, publisher EventPublisher) *CartService {
	return &CartService{
		carts:     carts,
		products:  products,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// AddItemRequest adds one line to a cart, creating the cart lazily when
// CartID is empty. CustomerID and SessionID are mutually exclusive owners.
type AddItemRequest struct {
	CartID     *string `json:"cart_id,omitempty"`
	CustomerID *int64  `json:"customer_id,omitempty"`
	SessionID  *string `json:"session_id,omitempty"`
	Email      string  `json:"email,omitempty"`
	ProductID  int64   `json:"product_id" binding:"required"`
	VariantID  *int64  `json:"variant_id,omitempty"`
	Quantity   int     `json:"quantity" binding:"required,min=1"`
}

// CartView is the cart aggregate returned to callers
type CartView struct {
	Cart  *models.Cart      `json:"cart"`
	Items []models.CartItem `json:"items"`
}

// AddItem snapshots the product price into the cart and refreshes the
// heartbeat. Adding to an abandoned cart reopens it.
func (cs *CartService) AddItem(ctx context.Context, req *AddItemRequest) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if req.CustomerID != nil && req.SessionID != nil {
		return nil, &ValidationError{Field: "owner", Message: "customer_id and session_id are mutually exclusive"}
	}

	cart, err := cs.resolveCart(ctx, req)
	if err != nil {
		return nil, err
	}

	product, err := cs.products.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %d: %w", req.ProductID, err)
	}
	if product == nil {
		return nil, fmt.Errorf("product %d: %w", req.ProductID, ErrProductNotFound)
	}

	sku := product.SKU
	title := product.Title
	price := product.PriceCents
	if req.VariantID != nil {
		variant, err := cs.products.GetVariantByID(ctx, *req.VariantID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up variant %d: %w", *req.VariantID, err)
		}
		if variant == nil || variant.ProductID != product.ID {
			return nil, fmt.Errorf("variant %d: %w", *req.VariantID, ErrVariantNotFound)
		}
		sku = variant.SKU
		title = fmt.Sprintf("%s - %s", product.Title, variant.Title)
		price = variant.PriceCents
	}

	item := &models.CartItem{
		CartID:     cart.ID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		SKU:        sku,
		Title:      title,
		PriceCents: price,
		Quantity:   req.Quantity,
	}
	if err := cs.carts.UpsertCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return cs.finishMutation(ctx, cart)
}

// UpdateItemQuantity replaces one line's quantity; zero removes the line
func (cs *CartService) UpdateItemQuantity(ctx context.Context, cartID string, itemID int64, quantity int) (*CartView, error) {
	cart, err := cs.mutableCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		if err := cs.carts.DeleteCartItem(ctx, cartID, itemID); err != nil {
			return nil, fmt.Errorf("failed to remove cart item: %w", err)
		}
	} else {
		if err := cs.carts.SetCartItemQuantity(ctx, cartID, itemID, quantity); err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	}

	return cs.finishMutation(ctx, cart)
}

// RemoveItem deletes one line and refreshes the total
func (cs *CartService) RemoveItem(ctx context.Context, cartID string, itemID int64) (*CartView, error) {
	cart, err := cs.mutableCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if err := cs.carts.DeleteCartItem(ctx, cartID, itemID); err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}

	return cs.finishMutation(ctx, cart)
}

// GetCart retrieves a cart and its items
func (cs *CartService) GetCart(ctx context.Context, cartID string) (*CartView, error) {
	cart, err := cs.carts.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	items, err := cs.carts.GetCartItems(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return &CartView{Cart: cart, Items: items}, nil
}

// SweepResult reports one abandonment sweep run
type SweepResult struct {
	MarkedCount   int `json:"marked_count"`
	NotifiedCount int `json:"notified_count"`
}

// SweepAbandoned marks open carts stale past the threshold as abandoned and
// triggers at most one recovery notification per cart, ever. The current
// time is injected so the sweep stays testable without wall-clock
// dependencies. Safe to run concurrently with checkouts: only carts still
// open are touched, and the worst race outcome is a duplicate notification.
func (cs *CartService) SweepAbandoned(ctx context.Context, now time.Time, staleAfter time.Duration) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SweepAbandoned")
	defer span.End()

	cutoff := now.Add(-staleAfter)
	stale, err := cs.carts.ListStaleOpenCarts(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale carts: %w", err)
	}

	result := &SweepResult{}
	for _, cart := range stale {
		claimed, err := cs.carts.MarkCartAbandoned(ctx, cart.ID)
		if err != nil {
			cs.logger.Error("Failed to mark cart abandoned",
				zap.String("cart_id", cart.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Checkout won the race; the cart is no longer open.
			continue
		}
		result.MarkedCount++
		util.CartsSweptTotal.Inc()

		if cart.Email == "" {
			continue
		}
		items, err := cs.carts.GetCartItems(ctx, cart.ID)
		if err != nil {
			cs.logger.Error("Failed to load cart items for notification",
				zap.String("cart_id", cart.ID), zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}

		logged, err := cs.carts.InsertAbandonmentLog(ctx, cart.ID, cart.Email)
		if err != nil {
			cs.logger.Error("Failed to record abandonment log",
				zap.String("cart_id", cart.ID), zap.Error(err))
			continue
		}
		if !logged {
			continue
		}

		event := &models.CartAbandonedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCartAbandoned,
				Timestamp: now,
			},
			CartID:     cart.ID,
			Email:      cart.Email,
			TotalCents: cart.TotalCents,
			ItemCount:  len(items),
		}
		if err := cs.publisher.PublishCartAbandoned(ctx, event); err != nil {
			cs.logger.Error("Failed to publish CartAbandoned event", zap.Error(err))
		}
		result.NotifiedCount++
		util.CartsNotifiedTotal.Inc()
	}

	cs.logger.Info("Abandonment sweep finished",
		zap.Int("marked", result.MarkedCount),
		zap.Int("notified", result.NotifiedCount))
	return result, nil
}

func (cs *CartService) resolveCart(ctx context.Context, req *AddItemRequest) (*models.Cart, error) {
	if req.CartID != nil {
		return cs.mutableCart(ctx, *req.CartID)
	}

	cart := &models.Cart{
		ID:         uuid.New().String(),
		CustomerID: req.CustomerID,
		SessionID:  req.SessionID,
		Email:      req.Email,
		Status:     models.CartStatusOpen,
	}
	if err := cs.carts.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// mutableCart loads a cart that may still be edited. Abandoned carts reopen
// on mutation; recovered and completed carts are terminal.
func (cs *CartService) mutableCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := cs.carts.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	switch cart.Status {
	case models.CartStatusOpen:
	case models.CartStatusAbandoned:
		if err := cs.carts.SetCartStatus(ctx, cart.ID, models.CartStatusOpen); err != nil {
			return nil, fmt.Errorf("failed to reopen cart: %w", err)
		}
		cart.Status = models.CartStatusOpen
	default:
		return nil, NewConflict(ReasonCartNotOpen, "cart %s is %s", cart.ID, cart.Status)
	}
	return cart, nil
}

func (cs *CartService) finishMutation(ctx context.Context, cart *models.Cart) (*CartView, error) {
	if err := cs.carts.RecalcCartTotal(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("failed to recompute cart total: %w", err)
	}
	fresh, err := cs.carts.GetCartByID(ctx, cart.ID)
	if err != nil || fresh == nil {
		fresh = cart
	}
	items, err := cs.carts.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	return &CartView{Cart: fresh, Items: items}, nil
}
