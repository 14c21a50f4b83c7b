package controllers

import (
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

type CartController struct {
	cart      *services.CartService
	favorites *services.FavoriteService
}

func NewCartController() *CartController {
	return &CartController{
		cart:      services.NewCartService(),
		favorites: services.NewFavoriteService(),
	}
}

func (cc *CartController) Show(c *ctx.Context) {
	cart, err := cc.cart.List(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(cart)
}

func (cc *CartController) Add(c *ctx.Context) {
	var in services.CartItemInput
	if !c.BindJSON(&in) {
		return
	}
	cart, err := cc.cart.Add(c.Context(), c.UserID(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(cart)
}

func (cc *CartController) Update(c *ctx.Context) {
	productID, ok := id(c, "productID")
	if !ok {
		return
	}
	var in services.CartQuantityInput
	if !c.BindJSON(&in) {
		return
	}
	cart, err := cc.cart.Update(c.Context(), c.UserID(), productID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(cart)
}

func (cc *CartController) Remove(c *ctx.Context) {
	productID, ok := id(c, "productID")
	if !ok {
		return
	}
	cart, err := cc.cart.Remove(c.Context(), c.UserID(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(cart)
}

func (cc *CartController) Clear(c *ctx.Context) {
	if err := cc.cart.Clear(c.Context(), c.UserID()); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Cart cleared")
}

func (cc *CartController) Favorites(c *ctx.Context) {
	favs, err := cc.favorites.List(c.Context(), c.UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(favs)
}

func (cc *CartController) AddFavorite(c *ctx.Context) {
	productID, ok := id(c, "productID")
	if !ok {
		return
	}
	if err := cc.favorites.Add(c.Context(), c.UserID(), productID); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Saved to favorites")
}

func (cc *CartController) RemoveFavorite(c *ctx.Context) {
	productID, ok := id(c, "productID")
	if !ok {
		return
	}
	if err := cc.favorites.Remove(c.Context(), c.UserID(), productID); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Removed from favorites")
}
