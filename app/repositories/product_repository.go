package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/orm"
)

const productCacheTTL = 5 * time.Minute

// ProductRepository handles database operations for Product.
type ProductRepository struct{}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{}
}

// ProductFilter narrows Search. Zero values match everything.
type ProductFilter struct {
	Q        string  `json:"q"`
	Region   string  `json:"region"`
	Process  string  `json:"process"`
	Grade    int     `json:"grade"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	FarmerID uint    `json:"farmer_id"`
	Sort     string  `json:"sort"`

	// IncludeUnavailable lists inactive and sold-out lots too. Only the
	// owning farmer sets it.
	IncludeUnavailable bool `json:"-"`
}

// publicUser limits a preloaded user to what any visitor may see.
func publicUser(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "role") }

func productCacheKey(id uint) string { return fmt.Sprintf("darcho:product:%d", id) }

// Find loads a product by id.
func (r *ProductRepository) Find(ctx context.Context, id uint) (models.Product, error) {
	var p models.Product
	err := orm.DB(ctx).Model(&models.Product{}).Where("id = ?", id).First(&p)
	return p, err
}

// FindCached loads a product through the read-through cache.
func (r *ProductRepository) FindCached(ctx context.Context, id uint) (models.Product, error) {
	var p models.Product
	err := orm.DB(ctx).Model(&models.Product{}).Where("id = ?", id).
		Cache(ctx, productCacheKey(id), productCacheTTL, &p)
	return p, err
}

// Forget drops cached copies of the given products.
func (r *ProductRepository) Forget(ctx context.Context, ids ...uint) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productCacheKey(id)
	}
	orm.Forget(ctx, keys...)
}

// FindForUpdate locks the product row for the rest of the transaction.
func (r *ProductRepository) FindForUpdate(ctx context.Context, id uint) (models.Product, error) {
	var p models.Product
	err := orm.DB(ctx).Model(&models.Product{}).ForUpdate().Where("id = ?", id).First(&p)
	return p, err
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	return orm.DB(ctx).Create(p)
}

// UpdateFields writes only the given columns.
func (r *ProductRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	_, err := orm.DB(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
	return err
}

// Delete soft-deletes a product.
func (r *ProductRepository) Delete(ctx context.Context, id uint) (bool, error) {
	n, err := orm.DB(ctx).Delete(&models.Product{}, id)
	return n > 0, err
}

// DecrementStock takes qty from stock only if enough is left. It reports
// whether the row was updated.
func (r *ProductRepository) DecrementStock(ctx context.Context, id uint, qty float64) (bool, error) {
	n, err := orm.DB(ctx).Model(&models.Product{}).
		Where("id = ? AND quantity_kg >= ?", id, qty).
		Update("quantity_kg", gorm.Expr("quantity_kg - ?", qty))
	return n == 1, err
}

// RestoreStock puts qty back, including on soft-deleted products.
func (r *ProductRepository) RestoreStock(ctx context.Context, id uint, qty float64) error {
	_, err := orm.DB(ctx).Model(&models.Product{}).Unscoped().
		Where("id = ?", id).
		Update("quantity_kg", gorm.Expr("quantity_kg + ?", qty))
	return err
}

// ForFarmer lists every product a farmer owns.
func (r *ProductRepository) ForFarmer(ctx context.Context, farmerID uint) ([]models.Product, error) {
	products := []models.Product{}
	err := orm.DB(ctx).Model(&models.Product{}).
		Where("farmer_id = ?", farmerID).
		Order("id").
		Get(&products)
	return products, err
}

// Search returns a page of products matching f.
func (r *ProductRepository) Search(ctx context.Context, f ProductFilter, page, limit int) ([]models.Product, orm.Pagination, error) {
	q := r.filtered(ctx, f).Preload("Farmer", publicUser)

	switch f.Sort {
	case "price_asc":
		q = q.Order("price_per_kg ASC").Order("id DESC")
	case "price_desc":
		q = q.Order("price_per_kg DESC").Order("id DESC")
	case "score":
		q = q.Order("cupping_score DESC").Order("id DESC")
	default:
		q = q.Order("created_at DESC").Order("id DESC")
	}

	products := []models.Product{}
	p, err := q.Paginate(page, limit, &products)
	return products, p, err
}

func (r *ProductRepository) filtered(ctx context.Context, f ProductFilter) *orm.Query {
	q := orm.DB(ctx).Model(&models.Product{})
	if !f.IncludeUnavailable {
		q = q.Where("status = ? AND quantity_kg > 0", models.ProductActive)
	}
	if f.Q != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(f.Q)) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(variety) LIKE ? OR LOWER(description) LIKE ?)", like, like, like)
	}
	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}
	if f.Process != "" {
		q = q.Where("process = ?", f.Process)
	}
	if f.Grade > 0 {
		q = q.Where("grade = ?", f.Grade)
	}
	if f.MinPrice > 0 {
		q = q.Where("price_per_kg >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		q = q.Where("price_per_kg <= ?", f.MaxPrice)
	}
	if f.FarmerID > 0 {
		q = q.Where("farmer_id = ?", f.FarmerID)
	}
	return q
}

// ProductStats summarises a set of listings.
type ProductStats struct {
	Active   int64   `json:"active"`
	Inactive int64   `json:"inactive"`
	StockKg  float64 `json:"stock_kg"`
}

// Stats counts listings by status and sums their stock. farmerID 0 means
// every farmer.
func (r *ProductRepository) Stats(ctx context.Context, farmerID uint) (ProductStats, error) {
	q := orm.DB(ctx).Model(&models.Product{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(quantity_kg), 0) AS stock")
	if farmerID > 0 {
		q = q.Where("farmer_id = ?", farmerID)
	}
	var rows []struct {
		Status string
		Count  int64
		Stock  float64
	}
	if err := q.Group("status").Scan(&rows); err != nil {
		return ProductStats{}, err
	}

	var st ProductStats
	for _, row := range rows {
		if row.Status == models.ProductActive {
			st.Active += row.Count
		} else {
			st.Inactive += row.Count
		}
		st.StockKg += row.Stock
	}
	st.StockKg = models.Round2(st.StockKg)
	return st, nil
}
