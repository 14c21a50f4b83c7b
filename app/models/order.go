package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []string{OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled}

var transitions = map[string][]string{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether s is a known status.
func ValidOrderStatus(s string) bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Order is one buyer's purchase from one farmer. A checkout spanning several
// farmers creates several orders sharing CheckoutRef.
type Order struct {
	Model
	Reference       string  `gorm:"size:32;uniqueIndex;not null" json:"reference"`
	CheckoutRef     string  `gorm:"size:64;index;not null" json:"checkout_ref"`
	BuyerID         uint    `gorm:"not null;index:idx_orders_buyer_key" json:"buyer_id"`
	FarmerID        uint    `gorm:"not null;index" json:"farmer_id"`
	Status          string  `gorm:"size:16;not null;default:pending;index" json:"status"`
	TotalAmount     float64 `gorm:"not null" json:"total_amount"`
	ShippingAddress string  `gorm:"type:text" json:"shipping_address"`
	Note            string  `gorm:"type:text" json:"note,omitempty"`
	IdempotencyKey  string  `gorm:"size:128;index:idx_orders_buyer_key" json:"-"`
	CancelledReason string  `gorm:"size:255" json:"cancelled_reason,omitempty"`

	Items  []OrderItem `json:"items,omitempty"`
	Buyer  *User       `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Farmer *User       `gorm:"foreignKey:FarmerID" json:"farmer,omitempty"`
}

// OrderItem snapshots the product name and price at checkout time.
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	ProductID   uint      `gorm:"not null;index" json:"product_id"`
	ProductName string    `gorm:"size:255;not null" json:"product_name"`
	PricePerKg  float64   `gorm:"not null" json:"price_per_kg"`
	QuantityKg  float64   `gorm:"not null" json:"quantity_kg"`
	Subtotal    float64   `gorm:"not null" json:"subtotal"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewOrderReference returns DRC-YYYYMMDD-<8 hex>.
func NewOrderReference(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("DRC-%s-%s", now.UTC().Format("20060102"), hex[:8])
}
