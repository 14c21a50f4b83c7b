package services

import (
	"context"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/pkg/orm"
)

type FavoriteService struct {
	carts    *repositories.CartRepository
	products *repositories.ProductRepository
}

func NewFavoriteService() *FavoriteService {
	return &FavoriteService{
		carts:    repositories.NewCartRepository(),
		products: repositories.NewProductRepository(),
	}
}

// List returns the buyer's saved products.
func (s *FavoriteService) List(ctx context.Context, buyerID uint) ([]models.Favorite, error) {
	favs, err := s.carts.Favorites(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	for i := range favs {
		if favs[i].Product != nil {
			withImageURL(favs[i].Product)
		}
	}
	return favs, nil
}

// Add saves a product. Saving it twice is not an error.
func (s *FavoriteService) Add(ctx context.Context, buyerID, productID uint) error {
	if _, err := s.products.Find(ctx, productID); err != nil {
		return notFound(err, "product")
	}
	exists, err := s.carts.IsFavorite(ctx, buyerID, productID)
	if err != nil || exists {
		return err
	}
	err = s.carts.AddFavorite(ctx, &models.Favorite{BuyerID: buyerID, ProductID: productID})
	if orm.IsDuplicate(err) {
		return nil
	}
	return err
}

// Remove unsaves a product. Removing one that was never saved is not an error.
func (s *FavoriteService) Remove(ctx context.Context, buyerID, productID uint) error {
	if _, err := s.products.Find(ctx, productID); err != nil {
		return notFound(err, "product")
	}
	_, err := s.carts.RemoveFavorite(ctx, buyerID, productID)
	return err
}
