package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/event"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/metrics"
	"github.com/darcho/darcho/pkg/orm"
)

const (
	ReasonExpired         = "expired"
	reasonBuyerCancelled  = "cancelled by buyer"
	reasonFarmerCancelled = "cancelled by farmer"
	maxIdempotencyKeyLen  = 128
	expireBatchSize       = 100
)

type OrderService struct {
	orders   *repositories.OrderRepository
	products *repositories.ProductRepository
	carts    *repositories.CartRepository
	users    *repositories.UserRepository
}

func NewOrderService() *OrderService {
	return &OrderService{
		orders:   repositories.NewOrderRepository(),
		products: repositories.NewProductRepository(),
		carts:    repositories.NewCartRepository(),
		users:    repositories.NewUserRepository(),
	}
}

type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address" validate:"required,notblank,max=1000"`
	Note            string `json:"note" validate:"omitempty,max=1000"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=confirmed shipped delivered cancelled"`
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

type CancelInput struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// Checkout turns the buyer's cart into one pending order per farmer. With a
// non-empty key, a repeated call returns the orders of the first one and
// replayed is true.
func (s *OrderService) Checkout(ctx context.Context, buyerID uint, in CheckoutInput, key string) (orders []models.Order, replayed bool, err error) {
	defer func() {
		if err != nil {
			metrics.CheckoutFailures.WithLabelValues(checkoutFailureReason(err)).Inc()
		}
	}()

	if err := check(in); err != nil {
		return nil, false, err
	}
	key = strings.TrimSpace(key)
	if len(key) > maxIdempotencyKeyLen {
		return nil, false, fieldError("idempotency_key", fmt.Sprintf("The Idempotency-Key header may not exceed %d characters.", maxIdempotencyKeyLen))
	}
	if key != "" {
		prior, err := s.orders.ByIdempotencyKey(ctx, buyerID, key)
		if err != nil {
			return nil, false, err
		}
		if len(prior) > 0 {
			return prior, true, nil
		}
	}

	var touched []uint
	err = orm.Transaction(ctx, func(ctx context.Context) error {
		if err := s.users.LockForUpdate(ctx, buyerID); err != nil {
			return notFound(err, "buyer")
		}
		if key != "" {
			prior, err := s.orders.ByIdempotencyKey(ctx, buyerID, key)
			if err != nil {
				return err
			}
			if len(prior) > 0 {
				orders, replayed = prior, true
				return nil
			}
		}

		lines, err := s.carts.Lines(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		// Lock rows in a fixed order so concurrent checkouts cannot deadlock.
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		now := time.Now()
		checkoutRef := uuid.NewString()
		byFarmer := map[uint]*models.Order{}
		var farmers []uint

		for _, line := range lines {
			p, err := s.products.FindForUpdate(ctx, line.ProductID)
			if orm.IsNotFound(err) {
				return fmt.Errorf("%w: product %d is no longer listed", ErrConflict, line.ProductID)
			}
			if err != nil {
				return err
			}
			if p.Status != models.ProductActive {
				return fmt.Errorf("%w: %s is not available", ErrConflict, p.Name)
			}
			if line.QuantityKg < p.MinOrderKg {
				return fmt.Errorf("%w: the minimum order for %s is %.2f kg", ErrInvalidInput, p.Name, p.MinOrderKg)
			}
			ok, err := s.products.DecrementStock(ctx, p.ID, line.QuantityKg)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s has only %.2f kg left", ErrInsufficientStock, p.Name, p.QuantityKg)
			}
			touched = append(touched, p.ID)

			o, seen := byFarmer[p.FarmerID]
			if !seen {
				o = &models.Order{
					Reference:       models.NewOrderReference(now),
					CheckoutRef:     checkoutRef,
					BuyerID:         buyerID,
					FarmerID:        p.FarmerID,
					Status:          models.OrderPending,
					ShippingAddress: strings.TrimSpace(in.ShippingAddress),
					Note:            strings.TrimSpace(in.Note),
					IdempotencyKey:  key,
				}
				byFarmer[p.FarmerID] = o
				farmers = append(farmers, p.FarmerID)
			}
			subtotal := models.Round2(p.PricePerKg * line.QuantityKg)
			o.Items = append(o.Items, models.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				PricePerKg:  p.PricePerKg,
				QuantityKg:  line.QuantityKg,
				Subtotal:    subtotal,
			})
			o.TotalAmount = models.Round2(o.TotalAmount + subtotal)
		}

		for _, farmerID := range farmers {
			o := byFarmer[farmerID]
			if err := s.orders.Create(ctx, o); err != nil {
				return fmt.Errorf("create order for farmer %d: %w", farmerID, err)
			}
			orders = append(orders, *o)
		}
		_, err = s.carts.Clear(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		return orders, true, nil
	}

	s.products.Forget(ctx, touched...)
	metrics.OrdersPlaced.Add(float64(len(orders)))
	for _, o := range orders {
		event.Fire(ctx, event.OrderPlaced, o)
	}
	logger.WithCtx(ctx).Info("checkout completed",
		"buyer_id", buyerID, "orders", len(orders), "checkout_ref", orders[0].CheckoutRef)
	return orders, false, nil
}

func checkoutFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConflict):
		return "unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func checkStatusFilter(status string) error {
	if status != "" && !models.ValidOrderStatus(status) {
		return fieldError("status", "The selected status is invalid.")
	}
	return nil
}

// ListForBuyer pages the buyer's orders, optionally by status.
func (s *OrderService) ListForBuyer(ctx context.Context, buyerID uint, status string, page, limit int) ([]models.Order, orm.Pagination, error) {
	if err := checkStatusFilter(status); err != nil {
		return nil, orm.Pagination{}, err
	}
	return s.orders.List(ctx, repositories.OrderFilter{BuyerID: buyerID, Status: status}, page, limit)
}

// ListForFarmer pages the orders placed with a farmer.
func (s *OrderService) ListForFarmer(ctx context.Context, farmerID uint, status string, page, limit int) ([]models.Order, orm.Pagination, error) {
	if err := checkStatusFilter(status); err != nil {
		return nil, orm.Pagination{}, err
	}
	return s.orders.List(ctx, repositories.OrderFilter{FarmerID: farmerID, Status: status}, page, limit)
}

// ListAll pages every order for admins.
func (s *OrderService) ListAll(ctx context.Context, f repositories.OrderFilter, page, limit int) ([]models.Order, orm.Pagination, error) {
	if err := checkStatusFilter(f.Status); err != nil {
		return nil, orm.Pagination{}, err
	}
	return s.orders.List(ctx, f, page, limit)
}

// find loads an order and hides it from anyone it does not belong to.
func (s *OrderService) find(ctx context.Context, id uint, belongs func(*models.Order) bool) (models.Order, error) {
	o, err := s.orders.Find(ctx, id)
	if err != nil {
		return o, notFound(err, "order")
	}
	if !belongs(&o) {
		return models.Order{}, fmt.Errorf("%w: order", ErrNotFound)
	}
	return o, nil
}

func (s *OrderService) GetForBuyer(ctx context.Context, buyerID, id uint) (models.Order, error) {
	return s.find(ctx, id, func(o *models.Order) bool { return o.BuyerID == buyerID })
}

func (s *OrderService) GetForFarmer(ctx context.Context, farmerID, id uint) (models.Order, error) {
	return s.find(ctx, id, func(o *models.Order) bool { return o.FarmerID == farmerID })
}

// CancelByBuyer cancels one of the buyer's pending orders and restores stock.
func (s *OrderService) CancelByBuyer(ctx context.Context, buyerID, id uint, in CancelInput) (models.Order, error) {
	if err := check(in); err != nil {
		return models.Order{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = reasonBuyerCancelled
	}
	return s.transition(ctx, id, models.OrderCancelled, reason, buyerID, func(o *models.Order) error {
		if o.BuyerID != buyerID {
			return fmt.Errorf("%w: order", ErrNotFound)
		}
		if o.Status != models.OrderPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, this one is %s", ErrInvalidTransition, o.Status)
		}
		return nil
	})
}

// UpdateStatus moves one of the farmer's orders along its lifecycle.
func (s *OrderService) UpdateStatus(ctx context.Context, farmerID, id uint, in StatusInput) (models.Order, error) {
	if err := check(in); err != nil {
		return models.Order{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if in.Status == models.OrderCancelled && reason == "" {
		reason = reasonFarmerCancelled
	}
	return s.transition(ctx, id, in.Status, reason, farmerID, func(o *models.Order) error {
		if o.FarmerID != farmerID {
			return fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil
	})
}

// transition locks the order, runs allow, applies the status change and
// restores stock on cancellation, all in one transaction. Listeners hear
// about it after commit.
func (s *OrderService) transition(ctx context.Context, id uint, to, reason string, actorID uint, allow func(*models.Order) error) (models.Order, error) {
	var (
		from     string
		restored []uint
	)
	err := orm.Transaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.FindForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "order")
		}
		if err := allow(&o); err != nil {
			return err
		}
		if !models.CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s order cannot become %s", ErrInvalidTransition, o.Status, to)
		}
		ok, err := s.orders.Transition(ctx, o.ID, o.Status, to, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s changed while updating", ErrConflict, o.Reference)
		}
		if to == models.OrderCancelled {
			for _, it := range o.Items {
				if err := s.products.RestoreStock(ctx, it.ProductID, it.QuantityKg); err != nil {
					return fmt.Errorf("restore stock for product %d: %w", it.ProductID, err)
				}
				restored = append(restored, it.ProductID)
			}
		}
		from = o.Status
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.products.Forget(ctx, restored...)
	metrics.OrderTransitions.WithLabelValues(to).Inc()

	o, err := s.orders.Find(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	event.Fire(ctx, event.OrderStatusChanged, OrderStatusChange{Order: o, From: from, To: to, ActorID: actorID})
	logger.WithCtx(ctx).Info("order status changed", "order", o.Reference, "from", from, "to", to)
	return o, nil
}

// ExpirePending cancels pending orders older than olderThan with reason
// "expired" and returns how many it cancelled.
func (s *OrderService) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	expired := 0
	for {
		stale, err := s.orders.StalePending(ctx, cutoff, expireBatchSize)
		if err != nil {
			return expired, err
		}
		progressed := false
		for _, o := range stale {
			_, err := s.transition(ctx, o.ID, models.OrderCancelled, ReasonExpired, 0, func(o *models.Order) error {
				if o.Status != models.OrderPending {
					return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
				}
				return nil
			})
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflict) {
				continue
			}
			if err != nil {
				return expired, fmt.Errorf("expire order %s: %w", o.Reference, err)
			}
			expired++
			progressed = true
		}
		if len(stale) < expireBatchSize || !progressed {
			return expired, nil
		}
	}
}
