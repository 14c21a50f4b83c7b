package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/orm"
)

// CartRepository handles cart lines and favorites.
type CartRepository struct{}

func NewCartRepository() *CartRepository {
	return &CartRepository{}
}

// Lines returns the buyer's cart with products, oldest line first.
// Soft-deleted products still load so the line can be flagged.
func (r *CartRepository) Lines(ctx context.Context, buyerID uint) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := orm.DB(ctx).Model(&models.CartItem{}).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("buyer_id = ?", buyerID).
		Order("id").
		Get(&items)
	return items, err
}

// Line finds one cart line.
func (r *CartRepository) Line(ctx context.Context, buyerID, productID uint) (models.CartItem, error) {
	var item models.CartItem
	err := orm.DB(ctx).Model(&models.CartItem{}).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		First(&item)
	return item, err
}

func (r *CartRepository) SaveLine(ctx context.Context, item *models.CartItem) error {
	return orm.DB(ctx).Save(item)
}

func (r *CartRepository) RemoveLine(ctx context.Context, buyerID, productID uint) (bool, error) {
	n, err := orm.DB(ctx).Where("buyer_id = ? AND product_id = ?", buyerID, productID).Delete(&models.CartItem{})
	return n > 0, err
}

func (r *CartRepository) Clear(ctx context.Context, buyerID uint) (int64, error) {
	return orm.DB(ctx).Where("buyer_id = ?", buyerID).Delete(&models.CartItem{})
}

func (r *CartRepository) CountLines(ctx context.Context, buyerID uint) (int64, error) {
	return orm.DB(ctx).Model(&models.CartItem{}).Where("buyer_id = ?", buyerID).Count()
}

// Favorites lists the buyer's saved products, newest first.
func (r *CartRepository) Favorites(ctx context.Context, buyerID uint) ([]models.Favorite, error) {
	favs := []models.Favorite{}
	err := orm.DB(ctx).Model(&models.Favorite{}).
		Joins("JOIN products ON products.id = favorites.product_id AND products.deleted_at IS NULL").
		Preload("Product").
		Where("favorites.buyer_id = ?", buyerID).
		Order("favorites.id DESC").
		Get(&favs)
	return favs, err
}

func (r *CartRepository) IsFavorite(ctx context.Context, buyerID, productID uint) (bool, error) {
	return orm.DB(ctx).Model(&models.Favorite{}).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Exists()
}

func (r *CartRepository) AddFavorite(ctx context.Context, fav *models.Favorite) error {
	return orm.DB(ctx).Create(fav)
}

func (r *CartRepository) RemoveFavorite(ctx context.Context, buyerID, productID uint) (bool, error) {
	n, err := orm.DB(ctx).Where("buyer_id = ? AND product_id = ?", buyerID, productID).Delete(&models.Favorite{})
	return n > 0, err
}

func (r *CartRepository) CountFavorites(ctx context.Context, buyerID uint) (int64, error) {
	return orm.DB(ctx).Model(&models.Favorite{}).Where("buyer_id = ?", buyerID).Count()
}

// ForgetProduct removes a product from every cart and favorites list.
func (r *CartRepository) ForgetProduct(ctx context.Context, productID uint) error {
	if _, err := orm.DB(ctx).Where("product_id = ?", productID).Delete(&models.CartItem{}); err != nil {
		return err
	}
	_, err := orm.DB(ctx).Where("product_id = ?", productID).Delete(&models.Favorite{})
	return err
}
