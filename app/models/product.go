package models

import "math"

const (
	ProcessWashed  = "washed"
	ProcessNatural = "natural"
	ProcessHoney   = "honey"
)

const (
	ProductActive   = "active"
	ProductInactive = "inactive"
)

// Product is a coffee lot listed by a farmer. FarmerID is the farmer's
// user id.
type Product struct {
	Model
	FarmerID     uint    `gorm:"not null;index" json:"farmer_id"`
	Name         string  `gorm:"size:255;not null;index" json:"name"`
	Variety      string  `gorm:"size:128" json:"variety"`
	Region       string  `gorm:"size:64;index" json:"region"`
	Process      string  `gorm:"size:16" json:"process"`
	Grade        int     `json:"grade"`
	AltitudeM    int     `json:"altitude_m"`
	HarvestYear  int     `json:"harvest_year"`
	CuppingScore float64 `json:"cupping_score"`
	PricePerKg   float64 `gorm:"not null" json:"price_per_kg"`
	QuantityKg   float64 `gorm:"not null;default:0" json:"quantity_kg"`
	MinOrderKg   float64 `gorm:"not null;default:1" json:"min_order_kg"`
	Description  string  `gorm:"type:text" json:"description"`
	ImagePath    string  `gorm:"size:255" json:"image_path,omitempty"`
	ImageURL     string  `gorm:"-" json:"image_url,omitempty"`
	Status       string  `gorm:"size:16;not null;default:active;index" json:"status"`

	Farmer *User `gorm:"foreignKey:FarmerID" json:"farmer,omitempty"`
}

// IsAvailable reports whether the product can be bought right now.
func (p *Product) IsAvailable() bool {
	return p.Status == ProductActive && p.QuantityKg > 0
}

// Round2 rounds money and weights to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
