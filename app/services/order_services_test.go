package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/event"
)

func TestCheckoutCreatesOrderAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 9.5, 10)
	f.addToCart(buyer.ID, p.ID, 40)

	var placed []models.Order
	event.Listen(event.OrderPlaced, func(_ context.Context, payload any) error {
		placed = append(placed, payload.(models.Order))
		return nil
	})

	orders, replayed, err := NewOrderService().Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.NoError(t, err)
	assert.False(t, replayed)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, farmer.ID, o.FarmerID)
	assert.Equal(t, buyer.ID, o.BuyerID)
	assert.Equal(t, 380.0, o.TotalAmount)
	assert.Regexp(t, `^DRC-\d{8}-[0-9a-f]{8}$`, o.Reference)
	require.Len(t, o.Items, 1)
	assert.Equal(t, p.Name, o.Items[0].ProductName)
	assert.Equal(t, 9.5, o.Items[0].PricePerKg)

	assert.Equal(t, 60.0, f.stock(p.ID))
	assert.Zero(t, f.cartSize(buyer.ID))
	assert.Len(t, placed, 1)
}

func TestCheckoutSplitsByFarmer(t *testing.T) {
	f := newFixture(t)
	a, b := f.farmer("Guji"), f.farmer("Sidamo")
	buyer := f.buyer()
	pa1 := f.product(a.ID, 100, 10, 1)
	pa2 := f.product(a.ID, 100, 5, 1)
	pb := f.product(b.ID, 100, 8, 1)
	f.addToCart(buyer.ID, pa1.ID, 10)
	f.addToCart(buyer.ID, pa2.ID, 2)
	f.addToCart(buyer.ID, pb.ID, 5)

	orders, _, err := NewOrderService().Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.NoError(t, err)
	require.Len(t, orders, 2)

	byFarmer := map[uint]models.Order{}
	for _, o := range orders {
		byFarmer[o.FarmerID] = o
	}
	assert.Equal(t, 110.0, byFarmer[a.ID].TotalAmount)
	assert.Len(t, byFarmer[a.ID].Items, 2)
	assert.Equal(t, 40.0, byFarmer[b.ID].TotalAmount)
	assert.Equal(t, orders[0].CheckoutRef, orders[1].CheckoutRef)
	assert.NotEqual(t, orders[0].Reference, orders[1].Reference)
}

func TestCheckoutIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	f.addToCart(buyer.ID, p.ID, 10)

	svc := NewOrderService()
	first, replayed, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "key-123")
	require.NoError(t, err)
	assert.False(t, replayed)

	// A refilled cart must not be bought again under the same key.
	f.addToCart(buyer.ID, p.ID, 10)
	again, replayed, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "key-123")
	require.NoError(t, err)
	assert.True(t, replayed)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.Equal(t, 90.0, f.stock(p.ID))
	assert.EqualValues(t, 1, f.cartSize(buyer.ID))

	// The key is scoped to the buyer.
	other := f.buyer()
	f.addToCart(other.ID, p.ID, 5)
	mine, replayed, err := svc.Checkout(f.ctx, other.ID, checkoutInput, "key-123")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first[0].ID, mine[0].ID)
}

func TestCheckoutRollsBackOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	plenty := f.product(farmer.ID, 100, 10, 1)
	scarce := f.product(farmer.ID, 20, 10, 1)
	f.addToCart(buyer.ID, plenty.ID, 30)
	f.addToCart(buyer.ID, scarce.ID, 15)

	// Someone else buys the scarce lot down after it entered the cart.
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", scarce.ID).Update("quantity_kg", 5).Error)

	_, _, err := NewOrderService().Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 100.0, f.stock(plenty.ID), "first line must be rolled back")
	assert.Equal(t, 5.0, f.stock(scarce.ID))
	assert.EqualValues(t, 2, f.cartSize(buyer.ID))

	var n int64
	f.db.Model(&models.Order{}).Count(&n)
	assert.Zero(t, n)
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	svc := NewOrderService()

	t.Run("empty cart", func(t *testing.T) {
		buyer := f.buyer()
		_, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("missing address", func(t *testing.T) {
		buyer := f.buyer()
		_, _, err := svc.Checkout(f.ctx, buyer.ID, CheckoutInput{ShippingAddress: "  "}, "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "shipping_address")
	})

	t.Run("product withdrawn", func(t *testing.T) {
		buyer := f.buyer()
		p := f.product(farmer.ID, 50, 10, 1)
		f.addToCart(buyer.ID, p.ID, 5)
		require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", p.ID).Update("status", models.ProductInactive).Error)

		_, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 50.0, f.stock(p.ID))
	})

	t.Run("minimum raised", func(t *testing.T) {
		buyer := f.buyer()
		p := f.product(farmer.ID, 50, 10, 1)
		f.addToCart(buyer.ID, p.ID, 5)
		require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", p.ID).Update("min_order_kg", 10).Error)

		_, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("oversized key", func(t *testing.T) {
		buyer := f.buyer()
		key := make([]byte, maxIdempotencyKeyLen+1)
		for i := range key {
			key[i] = 'k'
		}
		_, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, string(key))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	p := f.product(farmer.ID, 100, 10, 1)

	const buyers = 5
	ids := make([]uint, buyers)
	for i := range ids {
		b := f.buyer()
		f.addToCart(b.ID, p.ID, 30)
		ids[i] = b.ID
	}

	svc := NewOrderService()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(buyerID uint) {
			defer wg.Done()
			_, _, err := svc.Checkout(context.Background(), buyerID, checkoutInput, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, ErrInsufficientStock):
				short++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, short)
	assert.Equal(t, 10.0, f.stock(p.ID))
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	f.addToCart(buyer.ID, p.ID, 20)

	var changes []OrderStatusChange
	event.Listen(event.OrderStatusChanged, func(_ context.Context, payload any) error {
		changes = append(changes, payload.(OrderStatusChange))
		return nil
	})

	svc := NewOrderService()
	orders, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.NoError(t, err)
	id := orders[0].ID

	_, err = svc.UpdateStatus(f.ctx, farmer.ID, id, StatusInput{Status: models.OrderShipped})
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot skip to shipped")

	other := f.farmer("Sidamo")
	_, err = svc.UpdateStatus(f.ctx, other.ID, id, StatusInput{Status: models.OrderConfirmed})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, to := range []string{models.OrderConfirmed, models.OrderShipped, models.OrderDelivered} {
		o, err := svc.UpdateStatus(f.ctx, farmer.ID, id, StatusInput{Status: to})
		require.NoError(t, err, to)
		assert.Equal(t, to, o.Status)
	}

	_, err = svc.UpdateStatus(f.ctx, farmer.ID, id, StatusInput{Status: models.OrderCancelled})
	assert.ErrorIs(t, err, ErrInvalidTransition, "delivered is final")

	require.Len(t, changes, 3)
	assert.Equal(t, models.OrderPending, changes[0].From)
	assert.Equal(t, models.OrderConfirmed, changes[0].To)
	assert.Equal(t, farmer.ID, changes[0].ActorID)
	assert.Equal(t, 80.0, f.stock(p.ID))
}

func TestBuyerCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	f.addToCart(buyer.ID, p.ID, 25)

	svc := NewOrderService()
	orders, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.NoError(t, err)
	id := orders[0].ID

	stranger := f.buyer()
	_, err = svc.CancelByBuyer(f.ctx, stranger.ID, id, CancelInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	o, err := svc.CancelByBuyer(f.ctx, buyer.ID, id, CancelInput{})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, o.Status)
	assert.Equal(t, reasonBuyerCancelled, o.CancelledReason)
	assert.Equal(t, 100.0, f.stock(p.ID))

	_, err = svc.CancelByBuyer(f.ctx, buyer.ID, id, CancelInput{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 100.0, f.stock(p.ID), "stock restored once")
}

func TestBuyerCannotCancelConfirmedOrder(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	f.addToCart(buyer.ID, p.ID, 10)

	svc := NewOrderService()
	orders, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(f.ctx, farmer.ID, orders[0].ID, StatusInput{Status: models.OrderConfirmed})
	require.NoError(t, err)

	_, err = svc.CancelByBuyer(f.ctx, buyer.ID, orders[0].ID, CancelInput{Reason: "changed my mind"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The farmer still can.
	o, err := svc.UpdateStatus(f.ctx, farmer.ID, orders[0].ID, StatusInput{Status: models.OrderCancelled})
	require.NoError(t, err)
	assert.Equal(t, reasonFarmerCancelled, o.CancelledReason)
	assert.Equal(t, 100.0, f.stock(p.ID))
}

func TestExpirePendingCancelsStaleOrders(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	p := f.product(farmer.ID, 100, 10, 1)
	svc := NewOrderService()

	place := func() models.Order {
		b := f.buyer()
		f.addToCart(b.ID, p.ID, 10)
		orders, _, err := svc.Checkout(f.ctx, b.ID, checkoutInput, "")
		require.NoError(t, err)
		return orders[0]
	}
	stale, fresh, confirmed := place(), place(), place()
	_, err := svc.UpdateStatus(f.ctx, farmer.ID, confirmed.ID, StatusInput{Status: models.OrderConfirmed})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-100 * time.Hour)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id IN ?", []uint{stale.ID, confirmed.ID}).Update("created_at", old).Error)

	n, err := svc.ExpirePending(f.ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetForBuyer(f.ctx, stale.BuyerID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
	assert.Equal(t, ReasonExpired, got.CancelledReason)

	got, err = svc.GetForBuyer(f.ctx, fresh.BuyerID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)

	assert.Equal(t, 80.0, f.stock(p.ID))
}

func TestOrderListingFilters(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	svc := NewOrderService()

	for i := 0; i < 3; i++ {
		f.addToCart(buyer.ID, p.ID, 5)
		_, _, err := svc.Checkout(f.ctx, buyer.ID, checkoutInput, "")
		require.NoError(t, err)
	}

	orders, page, err := svc.ListForBuyer(f.ctx, buyer.ID, "", 1, 2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.EqualValues(t, 3, page.Total)

	_, err = svc.UpdateStatus(f.ctx, farmer.ID, orders[0].ID, StatusInput{Status: models.OrderConfirmed})
	require.NoError(t, err)

	confirmed, _, err := svc.ListForFarmer(f.ctx, farmer.ID, models.OrderConfirmed, 1, 10)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)

	_, _, err = svc.ListForBuyer(f.ctx, buyer.ID, "lost", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.GetForFarmer(f.ctx, f.farmer("Limu").ID, orders[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
