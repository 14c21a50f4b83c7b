package models

import "time"

// CartItem is one line of a buyer's cart. BuyerID is the buyer's user id.
type CartItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BuyerID    uint      `gorm:"not null;uniqueIndex:idx_cart_buyer_product" json:"buyer_id"`
	ProductID  uint      `gorm:"not null;uniqueIndex:idx_cart_buyer_product" json:"product_id"`
	QuantityKg float64   `gorm:"not null" json:"quantity_kg"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Product *Product `json:"product,omitempty"`
}

// Favorite is a product a buyer saved.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BuyerID   uint      `gorm:"not null;uniqueIndex:idx_favorite_buyer_product" json:"buyer_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_favorite_buyer_product" json:"product_id"`
	CreatedAt time.Time `json:"created_at"`

	Product *Product `json:"product,omitempty"`
}
