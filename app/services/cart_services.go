package services

import (
	"context"
	"fmt"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/orm"
)

// Cart line issues reported by List.
const (
	IssueUnavailable       = "unavailable"
	IssueInsufficientStock = "insufficient_stock"
	IssueBelowMinimum      = "below_minimum"
)

type CartService struct {
	carts    *repositories.CartRepository
	products *repositories.ProductRepository
}

func NewCartService() *CartService {
	return &CartService{
		carts:    repositories.NewCartRepository(),
		products: repositories.NewProductRepository(),
	}
}

type CartItemInput struct {
	ProductID  uint    `json:"product_id" validate:"required"`
	QuantityKg float64 `json:"quantity_kg" validate:"required,gt=0"`
}

type CartQuantityInput struct {
	QuantityKg float64 `json:"quantity_kg" validate:"gte=0"`
}

// CartLine is one cart row as the buyer sees it.
type CartLine struct {
	ProductID  uint            `json:"product_id"`
	QuantityKg float64         `json:"quantity_kg"`
	Subtotal   float64         `json:"subtotal"`
	Available  bool            `json:"available"`
	Issues     []string        `json:"issues"`
	Product    *models.Product `json:"product"`
}

type Cart struct {
	Lines     []CartLine `json:"lines"`
	Total     float64    `json:"total"`
	Checkable bool       `json:"checkable"`
}

// lineIssues lists why qty of p cannot be bought right now.
func lineIssues(p *models.Product, qty float64) []string {
	issues := []string{}
	if p == nil || p.DeletedAt.Valid || p.Status != models.ProductActive {
		return append(issues, IssueUnavailable)
	}
	if qty > p.QuantityKg {
		issues = append(issues, IssueInsufficientStock)
	}
	if qty < p.MinOrderKg {
		issues = append(issues, IssueBelowMinimum)
	}
	return issues
}

// List returns the cart with per-line availability.
func (s *CartService) List(ctx context.Context, buyerID uint) (Cart, error) {
	items, err := s.carts.Lines(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}

	cart := Cart{Lines: make([]CartLine, 0, len(items)), Checkable: len(items) > 0}
	for _, it := range items {
		line := CartLine{
			ProductID:  it.ProductID,
			QuantityKg: it.QuantityKg,
			Product:    it.Product,
			Issues:     lineIssues(it.Product, it.QuantityKg),
		}
		line.Available = len(line.Issues) == 0
		if it.Product != nil {
			withImageURL(it.Product)
			line.Subtotal = models.Round2(it.Product.PricePerKg * it.QuantityKg)
		}
		if line.Available {
			cart.Total += line.Subtotal
		} else {
			cart.Checkable = false
		}
		cart.Lines = append(cart.Lines, line)
	}
	cart.Total = models.Round2(cart.Total)
	return cart, nil
}

// checkQuantity validates qty against the product's rules.
func checkQuantity(p *models.Product, qty float64) error {
	if p.Status != models.ProductActive {
		return fmt.Errorf("%w: %s is not available", ErrConflict, p.Name)
	}
	if qty < p.MinOrderKg {
		return fieldError("quantity_kg", fmt.Sprintf("The minimum order for %s is %.2f kg.", p.Name, p.MinOrderKg))
	}
	if qty > p.QuantityKg {
		return fmt.Errorf("%w: %s has only %.2f kg left", ErrInsufficientStock, p.Name, p.QuantityKg)
	}
	return nil
}

// Add puts qty of a product in the cart, summing with an existing line.
func (s *CartService) Add(ctx context.Context, buyerID uint, in CartItemInput) (Cart, error) {
	if err := check(in); err != nil {
		return Cart{}, err
	}
	err := orm.Transaction(ctx, func(ctx context.Context) error {
		p, err := s.products.Find(ctx, in.ProductID)
		if err != nil {
			return notFound(err, "product")
		}

		line, err := s.carts.Line(ctx, buyerID, p.ID)
		switch {
		case orm.IsNotFound(err):
			line = models.CartItem{BuyerID: buyerID, ProductID: p.ID}
		case err != nil:
			return err
		}
		qty := models.Round2(line.QuantityKg + in.QuantityKg)
		if err := checkQuantity(&p, qty); err != nil {
			return err
		}
		line.QuantityKg = qty
		return s.carts.SaveLine(ctx, &line)
	})
	if err != nil {
		return Cart{}, err
	}
	return s.List(ctx, buyerID)
}

// Update sets the quantity of a line. Zero removes it.
func (s *CartService) Update(ctx context.Context, buyerID, productID uint, in CartQuantityInput) (Cart, error) {
	if err := check(in); err != nil {
		return Cart{}, err
	}
	if in.QuantityKg == 0 {
		return s.Remove(ctx, buyerID, productID)
	}
	err := orm.Transaction(ctx, func(ctx context.Context) error {
		line, err := s.carts.Line(ctx, buyerID, productID)
		if err != nil {
			return notFound(err, "cart line")
		}
		p, err := s.products.Find(ctx, productID)
		if err != nil {
			return notFound(err, "product")
		}
		qty := models.Round2(in.QuantityKg)
		if err := checkQuantity(&p, qty); err != nil {
			return err
		}
		line.QuantityKg = qty
		return s.carts.SaveLine(ctx, &line)
	})
	if err != nil {
		return Cart{}, err
	}
	return s.List(ctx, buyerID)
}

// Remove drops a line.
func (s *CartService) Remove(ctx context.Context, buyerID, productID uint) (Cart, error) {
	removed, err := s.carts.RemoveLine(ctx, buyerID, productID)
	if err != nil {
		return Cart{}, err
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: cart line", ErrNotFound)
	}
	return s.List(ctx, buyerID)
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, buyerID uint) error {
	_, err := s.carts.Clear(ctx, buyerID)
	return err
}
