// Package models holds the GORM models of the marketplace.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Model is gorm.Model with snake_case JSON. Soft-deleted rows never leave
// the API, so DeletedAt is not serialised.
type Model struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{}, &Farmer{}, &Buyer{},
		&Product{},
		&CartItem{}, &Favorite{},
		&Order{}, &OrderItem{},
		&Message{}, &Notification{},
	}
}
