package models

import (
	"time"

	"github.com/darcho/darcho/pkg/crypt"
)

const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusSuspended = "suspended"
)

// User is an account. Farmers and buyers carry a profile row.
type User struct {
	Model
	Name        string     `gorm:"size:255;not null" json:"name"`
	Email       string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone       string     `gorm:"size:32" json:"phone"`
	Password    string     `gorm:"size:255;not null" json:"-"`
	Role        string     `gorm:"size:20;not null;index" json:"role"`
	Status      string     `gorm:"size:20;not null;default:active;index" json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	Farmer *Farmer `gorm:"foreignKey:UserID" json:"farmer,omitempty"`
	Buyer  *Buyer  `gorm:"foreignKey:UserID" json:"buyer,omitempty"`
}

// IsActive reports whether the account may act on the marketplace.
func (u *User) IsActive() bool { return u.Status == StatusActive }

// Regions are the coffee-growing regions a farm or product can name.
var Regions = []string{
	"Yirgacheffe", "Sidamo", "Guji", "Harrar", "Limu", "Jimma",
	"Kaffa", "Bench Maji", "Illubabor", "Wollega", "Bale", "Arsi",
}

// Farmer is the seller profile.
type Farmer struct {
	Model
	UserID         uint         `gorm:"uniqueIndex;not null" json:"user_id"`
	FarmName       string       `gorm:"size:255" json:"farm_name"`
	Region         string       `gorm:"size:64;index" json:"region"`
	Zone           string       `gorm:"size:64" json:"zone"`
	AltitudeM      int          `json:"altitude_m"`
	FarmSizeHa     float64      `json:"farm_size_ha"`
	Certifications string       `gorm:"size:255" json:"certifications"`
	Bio            string       `gorm:"type:text" json:"bio"`
	PayoutAccount  crypt.Secret `gorm:"type:text" json:"payout_account"`
}

const (
	BuyerRoaster  = "roaster"
	BuyerImporter = "importer"
	BuyerExporter = "exporter"
	BuyerRetailer = "retailer"
	BuyerCafe     = "cafe"
)

// Buyer is the purchaser profile.
type Buyer struct {
	Model
	UserID      uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	CompanyName string `gorm:"size:255" json:"company_name"`
	BuyerType   string `gorm:"size:20" json:"buyer_type"`
	Country     string `gorm:"size:64" json:"country"`
	Address     string `gorm:"type:text" json:"address"`
}
