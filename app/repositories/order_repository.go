package repositories

import (
	"context"
	"time"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/pkg/orm"
)

// OrderRepository handles orders and their items.
type OrderRepository struct{}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// OrderFilter narrows List. Zero values match everything.
type OrderFilter struct {
	BuyerID  uint
	FarmerID uint
	Status   string
}

// Create inserts the order with its items.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	return orm.DB(ctx).Create(o)
}

// ByIdempotencyKey returns the orders a buyer already placed with key.
func (r *OrderRepository) ByIdempotencyKey(ctx context.Context, buyerID uint, key string) ([]models.Order, error) {
	orders := []models.Order{}
	err := orm.DB(ctx).Model(&models.Order{}).
		Preload("Items").
		Where("buyer_id = ? AND idempotency_key = ?", buyerID, key).
		Order("id").
		Get(&orders)
	return orders, err
}

// Find loads an order with items and both parties.
func (r *OrderRepository) Find(ctx context.Context, id uint) (models.Order, error) {
	var o models.Order
	err := orm.DB(ctx).Model(&models.Order{}).
		Preload("Items").
		Preload("Buyer").
		Preload("Farmer").
		Where("id = ?", id).
		First(&o)
	return o, err
}

// FindForUpdate locks the order row and loads its items.
func (r *OrderRepository) FindForUpdate(ctx context.Context, id uint) (models.Order, error) {
	var o models.Order
	err := orm.DB(ctx).Model(&models.Order{}).ForUpdate().
		Preload("Items").
		Where("id = ?", id).
		First(&o)
	return o, err
}

// Transition moves an order from one status to another. It reports false
// when the order is no longer in from.
func (r *OrderRepository) Transition(ctx context.Context, id uint, from, to, reason string) (bool, error) {
	values := map[string]any{"status": to}
	if to == models.OrderCancelled {
		values["cancelled_reason"] = reason
	}
	n, err := orm.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return n == 1, err
}

// List returns a page of orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f OrderFilter, page, limit int) ([]models.Order, orm.Pagination, error) {
	q := orm.DB(ctx).Model(&models.Order{}).Preload("Items")
	if f.BuyerID > 0 {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.FarmerID > 0 {
		q = q.Where("farmer_id = ?", f.FarmerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	orders := []models.Order{}
	p, err := q.Order("id DESC").Paginate(page, limit, &orders)
	return orders, p, err
}

// Recent returns the latest n orders matching f.
func (r *OrderRepository) Recent(ctx context.Context, f OrderFilter, n int) ([]models.Order, error) {
	orders, _, err := r.List(ctx, f, 1, n)
	return orders, err
}

// StalePending lists pending orders created before cutoff.
func (r *OrderRepository) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := orm.DB(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderPending, cutoff).
		Order("id").
		Limit(limit).
		Get(&orders)
	return orders, err
}

// StatusCount is one row of a GROUP BY status.
type StatusCount struct {
	Status string
	Count  int64
	Total  float64
}

// CountByStatus aggregates orders matching f per status.
func (r *OrderRepository) CountByStatus(ctx context.Context, f OrderFilter) (map[string]StatusCount, error) {
	q := orm.DB(ctx).Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total")
	if f.BuyerID > 0 {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.FarmerID > 0 {
		q = q.Where("farmer_id = ?", f.FarmerID)
	}
	var rows []StatusCount
	if err := q.Group("status").Scan(&rows); err != nil {
		return nil, err
	}

	out := make(map[string]StatusCount, len(models.OrderStatuses))
	for _, s := range models.OrderStatuses {
		out[s] = StatusCount{Status: s}
	}
	for _, row := range rows {
		out[row.Status] = row
	}
	return out, nil
}

// RegionVolume is the quantity ordered from one coffee region.
type RegionVolume struct {
	Region     string  `json:"region"`
	QuantityKg float64 `json:"quantity_kg"`
}

// TopRegions ranks regions by kilograms ordered, ignoring cancelled orders.
func (r *OrderRepository) TopRegions(ctx context.Context, n int) ([]RegionVolume, error) {
	rows := []RegionVolume{}
	err := orm.DB(ctx).Model(&models.OrderItem{}).
		Select("products.region AS region, SUM(order_items.quantity_kg) AS quantity_kg").
		Joins("JOIN orders ON orders.id = order_items.order_id AND orders.deleted_at IS NULL").
		Joins("JOIN products ON products.id = order_items.product_id").
		Where("orders.status <> ?", models.OrderCancelled).
		Group("products.region").
		Order("quantity_kg DESC").
		Limit(n).
		Scan(&rows)
	for i := range rows {
		rows[i].QuantityKg = models.Round2(rows[i].QuantityKg)
	}
	return rows, err
}
