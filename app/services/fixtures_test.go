package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/internal/dbtest"
)

var seq atomic.Int64

type fixture struct {
	t   *testing.T
	db  *gorm.DB
	ctx context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return fixtureOn(t, dbtest.Setup(t))
}

func fixtureOn(t *testing.T, db *gorm.DB) *fixture {
	return &fixture{t: t, db: db, ctx: context.Background()}
}

// user inserts an account directly. The password column holds a dummy hash;
// auth tests register through AuthService instead.
func (f *fixture) user(role, status string) models.User {
	f.t.Helper()
	n := seq.Add(1)
	u := models.User{
		Name:     fmt.Sprintf("%s %d", role, n),
		Email:    fmt.Sprintf("%s%d@darcho.test", role, n),
		Password: "x",
		Role:     role,
		Status:   status,
	}
	require.NoError(f.t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) farmer(region string) models.User {
	f.t.Helper()
	u := f.user(models.RoleFarmer, models.StatusActive)
	farm := models.Farmer{UserID: u.ID, FarmName: u.Name + " farm", Region: region}
	require.NoError(f.t, f.db.Create(&farm).Error)
	u.Farmer = &farm
	return u
}

func (f *fixture) buyer() models.User {
	f.t.Helper()
	u := f.user(models.RoleBuyer, models.StatusActive)
	require.NoError(f.t, f.db.Create(&models.Buyer{UserID: u.ID, CompanyName: u.Name + " co"}).Error)
	return u
}

func (f *fixture) admin() models.User {
	f.t.Helper()
	return f.user(models.RoleAdmin, models.StatusActive)
}

func (f *fixture) product(farmerID uint, stock, price, min float64) models.Product {
	f.t.Helper()
	p := models.Product{
		FarmerID:   farmerID,
		Name:       fmt.Sprintf("Lot %d", seq.Add(1)),
		Region:     "Guji",
		Process:    models.ProcessWashed,
		Grade:      1,
		PricePerKg: price,
		QuantityKg: stock,
		MinOrderKg: min,
		Status:     models.ProductActive,
	}
	require.NoError(f.t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) addToCart(buyerID, productID uint, qty float64) {
	f.t.Helper()
	_, err := NewCartService().Add(f.ctx, buyerID, CartItemInput{ProductID: productID, QuantityKg: qty})
	require.NoError(f.t, err)
}

func (f *fixture) stock(productID uint) float64 {
	f.t.Helper()
	var p models.Product
	require.NoError(f.t, f.db.Unscoped().First(&p, productID).Error)
	return p.QuantityKg
}

func (f *fixture) cartSize(buyerID uint) int64 {
	var n int64
	f.db.Model(&models.CartItem{}).Where("buyer_id = ?", buyerID).Count(&n)
	return n
}

var checkoutInput = CheckoutInput{ShippingAddress: "Bole Road, Addis Ababa"}
