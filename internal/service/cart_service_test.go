package service

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCartService(st *memStore, pub *fakePublisher) *CartService {
	return NewCartService(st, st, pub)
}

func TestAddItemCreatesCartLazily(t *testing.T) {
	st := newMemStore()
	seedCatalog(st)
	svc := newTestCartService(st, &fakePublisher{})

	view, err := svc.AddItem(context.Background(), &AddItemRequest{
		Email:     "buyer@example.com",
		ProductID: 1,
		Quantity:  2,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Cart.ID)
	assert.Equal(t, models.CartStatusOpen, view.Cart.Status)
	assert.Equal(t, int64(2000), view.Cart.TotalCents)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "SKU-A", view.Items[0].SKU)
	assert.Equal(t, int64(1000), view.Items[0].PriceCents)
}

func TestAddItemMergesDuplicateLines(t *testing.T) {
	st := newMemStore()
	seedCatalog(st)
	svc := newTestCartService(st, &fakePublisher{})

	view, err := svc.AddItem(context.Background(), &AddItemRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	view, err = svc.AddItem(context.Background(), &AddItemRequest{
		CartID: &view.Cart.ID, ProductID: 1, Quantity: 2,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.Equal(t, int64(3000), view.Cart.TotalCents)
}

func TestAddItemRejectsDualOwners(t *testing.T) {
	svc := newTestCartService(newMemStore(), &fakePublisher{})
	customer := int64(1)
	session := "sess-1"
	_, err := svc.AddItem(context.Background(), &AddItemRequest{
		CustomerID: &customer, SessionID: &session, ProductID: 1, Quantity: 1,
	})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateItemQuantityZeroRemovesLine(t *testing.T) {
	st := newMemStore()
	seedCatalog(st)
	svc := newTestCartService(st, &fakePublisher{})

	view, err := svc.AddItem(context.Background(), &AddItemRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	itemID := view.Items[0].ID

	view, err = svc.UpdateItemQuantity(context.Background(), view.Cart.ID, itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, int64(0), view.Cart.TotalCents)
}

func TestMutationReopensAbandonedCart(t *testing.T) {
	st := newMemStore()
	seedCatalog(st)
	cart := &models.Cart{ID: "cart-1", Status: models.CartStatusAbandoned, Email: "buyer@example.com"}
	require.NoError(t, st.CreateCart(context.Background(), cart))
	svc := newTestCartService(st, &fakePublisher{})

	cartID := "cart-1"
	view, err := svc.AddItem(context.Background(), &AddItemRequest{
		CartID: &cartID, ProductID: 1, Quantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CartStatusOpen, view.Cart.Status)
}

func TestMutationRejectsTerminalCart(t *testing.T) {
	st := newMemStore()
	seedCatalog(st)
	for _, status := range []string{models.CartStatusRecovered, models.CartStatusCompleted} {
		cart := &models.Cart{ID: "cart-" + status, Status: status}
		require.NoError(t, st.CreateCart(context.Background(), cart))

		svc := newTestCartService(st, &fakePublisher{})
		_, err := svc.AddItem(context.Background(), &AddItemRequest{
			CartID: &cart.ID, ProductID: 1, Quantity: 1,
		})
		reason, ok := ConflictReason(err)
		require.True(t, ok, "status %s should be terminal", status)
		assert.Equal(t, ReasonCartNotOpen, reason)
	}
}

func TestSweepMarksStaleCartsAndNotifiesOnce(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	stale := &models.Cart{ID: "stale", Status: models.CartStatusOpen, Email: "buyer@example.com", TotalCents: 2000}
	require.NoError(t, st.CreateCart(context.Background(), stale))
	st.carts["stale"].UpdatedAt = now.Add(-2 * time.Hour)
	st.cartItems["stale"] = []models.CartItem{{ID: 1, CartID: "stale", ProductID: 1, Quantity: 2, PriceCents: 1000}}

	fresh := &models.Cart{ID: "fresh", Status: models.CartStatusOpen, Email: "other@example.com"}
	require.NoError(t, st.CreateCart(context.Background(), fresh))

	pub := &fakePublisher{}
	svc := newTestCartService(st, pub)

	result, err := svc.SweepAbandoned(context.Background(), now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MarkedCount)
	assert.Equal(t, 1, result.NotifiedCount)

	assert.Equal(t, models.CartStatusAbandoned, st.carts["stale"].Status)
	assert.Equal(t, models.CartStatusOpen, st.carts["fresh"].Status)
	require.Len(t, pub.abandoned, 1)
	assert.Equal(t, "stale", pub.abandoned[0].CartID)
	assert.Equal(t, int64(2000), pub.abandoned[0].TotalCents)

	// A second sweep is a no-op: the cart is no longer open.
	result, err = svc.SweepAbandoned(context.Background(), now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, result.MarkedCount)
	assert.Equal(t, 0, result.NotifiedCount)
	assert.Len(t, pub.abandoned, 1)
}

func TestSweepNotifiesAtMostOncePerCart(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	cart := &models.Cart{ID: "boomerang", Status: models.CartStatusOpen, Email: "buyer@example.com"}
	require.NoError(t, st.CreateCart(context.Background(), cart))
	st.carts["boomerang"].UpdatedAt = now.Add(-2 * time.Hour)
	st.cartItems["boomerang"] = []models.CartItem{{ID: 1, CartID: "boomerang", ProductID: 1, Quantity: 1, PriceCents: 500}}

	pub := &fakePublisher{}
	svc := newTestCartService(st, pub)

	_, err := svc.SweepAbandoned(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, pub.abandoned, 1)

	// The shopper came back, edited the cart, then went stale again. It is
	// re-marked but never re-notified.
	st.carts["boomerang"].Status = models.CartStatusOpen
	st.carts["boomerang"].UpdatedAt = now.Add(-2 * time.Hour)

	result, err := svc.SweepAbandoned(context.Background(), now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MarkedCount)
	assert.Equal(t, 0, result.NotifiedCount)
	assert.Len(t, pub.abandoned, 1)
}

func TestSweepSkipsAnonymousAndEmptyCarts(t *testing.T) {
	st := newMemStore()
	now := time.Now().UTC()

	noEmail := &models.Cart{ID: "no-email", Status: models.CartStatusOpen}
	require.NoError(t, st.CreateCart(context.Background(), noEmail))
	st.carts["no-email"].UpdatedAt = now.Add(-2 * time.Hour)
	st.cartItems["no-email"] = []models.CartItem{{ID: 1, CartID: "no-email", ProductID: 1, Quantity: 1, PriceCents: 500}}

	empty := &models.Cart{ID: "empty", Status: models.CartStatusOpen, Email: "buyer@example.com"}
	require.NoError(t, st.CreateCart(context.Background(), empty))
	st.carts["empty"].UpdatedAt = now.Add(-2 * time.Hour)

	pub := &fakePublisher{}
	svc := newTestCartService(st, pub)

	result, err := svc.SweepAbandoned(context.Background(), now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MarkedCount)
	assert.Equal(t, 0, result.NotifiedCount)
	assert.Empty(t, pub.abandoned)
}

func TestGetCartNotFound(t *testing.T) {
	svc := newTestCartService(newMemStore(), &fakePublisher{})
	_, err := svc.GetCart(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCartNotFound)
}
