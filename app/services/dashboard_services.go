package services

import (
	"context"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
)

const recentOrders = 5

type DashboardService struct {
	orders   *repositories.OrderRepository
	products *repositories.ProductRepository
	carts    *repositories.CartRepository
	users    *repositories.UserRepository
}

func NewDashboardService() *DashboardService {
	return &DashboardService{
		orders:   repositories.NewOrderRepository(),
		products: repositories.NewProductRepository(),
		carts:    repositories.NewCartRepository(),
		users:    repositories.NewUserRepository(),
	}
}

type FarmerDashboard struct {
	Products       repositories.ProductStats `json:"products"`
	Orders         map[string]int64          `json:"orders"`
	Revenue        float64                   `json:"revenue"`
	PendingRevenue float64                   `json:"pending_revenue"`
	RecentOrders   []models.Order            `json:"recent_orders"`
}

type BuyerDashboard struct {
	Orders       map[string]int64 `json:"orders"`
	TotalSpent   float64          `json:"total_spent"`
	CartLines    int64            `json:"cart_lines"`
	Favorites    int64            `json:"favorites"`
	RecentOrders []models.Order   `json:"recent_orders"`
}

type AdminDashboard struct {
	Users          []repositories.RoleStatusCount `json:"users"`
	ActiveProducts int64                          `json:"active_products"`
	Orders         map[string]int64               `json:"orders"`
	GMV            float64                        `json:"gmv"`
	TopRegions     []repositories.RegionVolume    `json:"top_regions"`
}

// orderSummary reduces per-status rows to counts plus the total of every
// non-cancelled order.
func orderSummary(rows map[string]repositories.StatusCount) (map[string]int64, float64) {
	counts := make(map[string]int64, len(rows))
	var live float64
	for status, row := range rows {
		counts[status] = row.Count
		if status != models.OrderCancelled {
			live += row.Total
		}
	}
	return counts, models.Round2(live)
}

func (s *DashboardService) Farmer(ctx context.Context, farmerID uint) (FarmerDashboard, error) {
	var d FarmerDashboard
	var err error
	if d.Products, err = s.products.Stats(ctx, farmerID); err != nil {
		return d, err
	}

	f := repositories.OrderFilter{FarmerID: farmerID}
	rows, err := s.orders.CountByStatus(ctx, f)
	if err != nil {
		return d, err
	}
	d.Orders, _ = orderSummary(rows)
	d.Revenue = models.Round2(rows[models.OrderDelivered].Total)
	d.PendingRevenue = models.Round2(rows[models.OrderPending].Total +
		rows[models.OrderConfirmed].Total + rows[models.OrderShipped].Total)

	d.RecentOrders, err = s.orders.Recent(ctx, f, recentOrders)
	return d, err
}

func (s *DashboardService) Buyer(ctx context.Context, buyerID uint) (BuyerDashboard, error) {
	var d BuyerDashboard
	f := repositories.OrderFilter{BuyerID: buyerID}
	rows, err := s.orders.CountByStatus(ctx, f)
	if err != nil {
		return d, err
	}
	d.Orders, d.TotalSpent = orderSummary(rows)

	if d.CartLines, err = s.carts.CountLines(ctx, buyerID); err != nil {
		return d, err
	}
	if d.Favorites, err = s.carts.CountFavorites(ctx, buyerID); err != nil {
		return d, err
	}
	d.RecentOrders, err = s.orders.Recent(ctx, f, recentOrders)
	return d, err
}

func (s *DashboardService) Admin(ctx context.Context) (AdminDashboard, error) {
	var d AdminDashboard
	var err error
	if d.Users, err = s.users.CountByRoleStatus(ctx); err != nil {
		return d, err
	}
	stats, err := s.products.Stats(ctx, 0)
	if err != nil {
		return d, err
	}
	d.ActiveProducts = stats.Active

	rows, err := s.orders.CountByStatus(ctx, repositories.OrderFilter{})
	if err != nil {
		return d, err
	}
	d.Orders, d.GMV = orderSummary(rows)

	d.TopRegions, err = s.orders.TopRegions(ctx, 5)
	return d, err
}
