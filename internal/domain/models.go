// Package domain defines the persistence models for the storefront catalog,
// promotions, carts, wishlists and orders. These types are mapped with GORM
// and form the core data layer shared by the repository, service and HTTP
// layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Brand is a manufacturer or label that products can be attributed to.
type Brand struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug        string    `json:"slug"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	LogoURL     string    `json:"logo_url"    gorm:"type:varchar(512)"`
	Website     string    `json:"website"     gorm:"type:varchar(512)"`
	IsActive    bool      `json:"is_active"   gorm:"not null;index"`
	Featured    bool      `json:"featured"    gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Brand.
func (Brand) TableName() string { return "brands" }

// Category groups products. Categories form a tree through ParentID.
type Category struct {
	ID          string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"                gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug        string    `json:"slug"                gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description"         gorm:"type:text"`
	ParentID    *string   `json:"parent_id,omitempty" gorm:"type:char(36);index"`
	ImageURL    string    `json:"image_url"           gorm:"type:varchar(512)"`
	IsActive    bool      `json:"is_active"           gorm:"not null;index"`
	Featured    bool      `json:"featured"            gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Store is a physical or virtual outlet.
type Store struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug        string    `json:"slug"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	Address     string    `json:"address"     gorm:"type:varchar(512)"`
	City        string    `json:"city"        gorm:"type:varchar(128);index"`
	Country     string    `json:"country"     gorm:"type:varchar(128);index"`
	Phone       string    `json:"phone"       gorm:"type:varchar(64)"`
	Email       string    `json:"email"       gorm:"type:varchar(255)"`
	IsActive    bool      `json:"is_active"   gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Store.
func (Store) TableName() string { return "stores" }

// Discount types.
const (
	DiscountPercentage  = "percentage"
	DiscountFixedAmount = "fixed_amount"
)

// Discount describes how a promotion reduces a price. It is embedded in
// campaigns, offers and coupons with the "discount_" column prefix.
type Discount struct {
	Type  string          `json:"type"  gorm:"type:varchar(16);not null"`
	Value decimal.Decimal `json:"value" gorm:"type:decimal(12,2);not null"`
}

// Apply returns the amount taken off base, never more than base itself.
func (d Discount) Apply(base decimal.Decimal) decimal.Decimal {
	var off decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		off = base.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixedAmount:
		off = d.Value
	}
	if off.GreaterThan(base) {
		return base
	}
	if off.IsNegative() {
		return decimal.Zero
	}
	return off
}

// Window is a validity period. A nil bound is open.
type Window struct {
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// Contains reports whether t lies within the window.
func (w Window) Contains(t time.Time) bool {
	if w.StartsAt != nil && t.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && t.After(*w.EndsAt) {
		return false
	}
	return true
}
