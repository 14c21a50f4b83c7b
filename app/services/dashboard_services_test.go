package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
)

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	f.product(farmer.ID, 50, 10, 1)
	orders := NewOrderService()

	checkout := func(qty float64) models.Order {
		f.addToCart(buyer.ID, p.ID, qty)
		placed, _, err := orders.Checkout(f.ctx, buyer.ID, checkoutInput, "")
		require.NoError(t, err)
		return placed[0]
	}
	delivered := checkout(10)
	pending := checkout(5)
	cancelled := checkout(2)

	for _, status := range []string{models.OrderConfirmed, models.OrderShipped, models.OrderDelivered} {
		_, err := orders.UpdateStatus(f.ctx, farmer.ID, delivered.ID, StatusInput{Status: status})
		require.NoError(t, err)
	}
	_, err := orders.CancelByBuyer(f.ctx, buyer.ID, cancelled.ID, CancelInput{})
	require.NoError(t, err)
	f.addToCart(buyer.ID, p.ID, 1)
	require.NoError(t, NewFavoriteService().Add(f.ctx, buyer.ID, p.ID))

	svc := NewDashboardService()

	fd, err := svc.Farmer(f.ctx, farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fd.Products.Active)
	assert.Equal(t, 135.0, fd.Products.StockKg)
	assert.Equal(t, 100.0, fd.Revenue)
	assert.Equal(t, 50.0, fd.PendingRevenue)
	assert.Equal(t, int64(1), fd.Orders[models.OrderDelivered])
	assert.Equal(t, int64(1), fd.Orders[models.OrderPending])
	assert.Equal(t, int64(1), fd.Orders[models.OrderCancelled])
	assert.Zero(t, fd.Orders[models.OrderShipped])
	assert.Len(t, fd.RecentOrders, 3)

	bd, err := svc.Buyer(f.ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, bd.TotalSpent, "cancelled orders do not count")
	assert.Equal(t, int64(1), bd.CartLines)
	assert.Equal(t, int64(1), bd.Favorites)
	assert.Equal(t, pending.ID, bd.RecentOrders[1].ID)

	ad, err := svc.Admin(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 150.0, ad.GMV)
	assert.Equal(t, int64(2), ad.ActiveProducts)
	require.NotEmpty(t, ad.TopRegions)
	assert.Equal(t, "Guji", ad.TopRegions[0].Region)
	assert.Equal(t, 15.0, ad.TopRegions[0].QuantityKg)
	assert.NotEmpty(t, ad.Users)
}

func TestFarmersDirectory(t *testing.T) {
	f := newFixture(t)
	guji := f.farmer("Guji")
	f.farmer("Sidamo")
	pending := f.user(models.RoleFarmer, models.StatusPending)
	require.NoError(t, f.db.Create(&models.Farmer{UserID: pending.ID, FarmName: "waiting", Region: "Guji"}).Error)

	cards, err := NewProductService().Farmers(f.ctx, "Guji")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, guji.ID, cards[0].UserID)

	cards, err = NewProductService().Farmers(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}
