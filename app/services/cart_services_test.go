package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darcho/darcho/app/models"
)

func TestCartAddSumsAndValidates(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 20)
	svc := NewCartService()

	_, err := svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: p.ID, QuantityKg: 10})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr, "below the minimum")
	assert.Contains(t, verr.Fields, "quantity_kg")

	cart, err := svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: p.ID, QuantityKg: 30})
	require.NoError(t, err)
	cart, err = svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: p.ID, QuantityKg: 20})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 50.0, cart.Lines[0].QuantityKg)
	assert.Equal(t, 500.0, cart.Total)
	assert.True(t, cart.Checkable)

	_, err = svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: p.ID, QuantityKg: 60})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: 9999, QuantityKg: 5})
	assert.ErrorIs(t, err, ErrNotFound)

	inactive := f.product(farmer.ID, 100, 10, 1)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("status", models.ProductInactive).Error)
	_, err = svc.Add(f.ctx, buyer.ID, CartItemInput{ProductID: inactive.ID, QuantityKg: 5})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCartUpdateRemoveClear(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	a := f.product(farmer.ID, 100, 10, 1)
	b := f.product(farmer.ID, 100, 4, 1)
	svc := NewCartService()
	f.addToCart(buyer.ID, a.ID, 5)
	f.addToCart(buyer.ID, b.ID, 5)

	cart, err := svc.Update(f.ctx, buyer.ID, a.ID, CartQuantityInput{QuantityKg: 8})
	require.NoError(t, err)
	assert.Equal(t, 100.0, cart.Total)

	_, err = svc.Update(f.ctx, buyer.ID, a.ID, CartQuantityInput{QuantityKg: 500})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	cart, err = svc.Update(f.ctx, buyer.ID, b.ID, CartQuantityInput{QuantityKg: 0})
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)

	_, err = svc.Remove(f.ctx, buyer.ID, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Update(f.ctx, buyer.ID, b.ID, CartQuantityInput{QuantityKg: 3})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Clear(f.ctx, buyer.ID))
	cart, err = svc.List(f.ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
	assert.False(t, cart.Checkable)
}

func TestCartListFlagsLinesThatCannotBeBought(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	ok := f.product(farmer.ID, 100, 10, 1)
	short := f.product(farmer.ID, 100, 10, 1)
	gone := f.product(farmer.ID, 100, 10, 1)
	f.addToCart(buyer.ID, ok.ID, 10)
	f.addToCart(buyer.ID, short.ID, 50)
	f.addToCart(buyer.ID, gone.ID, 10)

	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", short.ID).Update("quantity_kg", 20).Error)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", gone.ID).Update("status", models.ProductInactive).Error)

	cart, err := NewCartService().List(f.ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 3)
	assert.False(t, cart.Checkable)
	assert.Equal(t, 100.0, cart.Total, "only buyable lines count")

	issues := map[uint][]string{}
	for _, l := range cart.Lines {
		issues[l.ProductID] = l.Issues
	}
	assert.Empty(t, issues[ok.ID])
	assert.Equal(t, []string{IssueInsufficientStock}, issues[short.ID])
	assert.Equal(t, []string{IssueUnavailable}, issues[gone.ID])
}

func TestFavoritesAreIdempotent(t *testing.T) {
	f := newFixture(t)
	farmer := f.farmer("Guji")
	buyer := f.buyer()
	p := f.product(farmer.ID, 100, 10, 1)
	svc := NewFavoriteService()

	require.NoError(t, svc.Add(f.ctx, buyer.ID, p.ID))
	require.NoError(t, svc.Add(f.ctx, buyer.ID, p.ID))
	favs, err := svc.List(f.ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, p.ID, favs[0].ProductID)

	require.NoError(t, svc.Remove(f.ctx, buyer.ID, p.ID))
	require.NoError(t, svc.Remove(f.ctx, buyer.ID, p.ID))
	favs, err = svc.List(f.ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)

	assert.ErrorIs(t, svc.Add(f.ctx, buyer.ID, 9999), ErrNotFound)
}
