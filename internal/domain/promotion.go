package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppliesTo is the product scope of a campaign.
type AppliesTo struct {
	ProductIDs []string `json:"productsIds"`
}

// Campaign is a time-boxed promotion applied to a set of products. The
// product set lives in campaign_products and is mirrored on every listed
// product's Campaigns field.
type Campaign struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug        string    `json:"slug"        gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	Discount    Discount  `json:"discount"    gorm:"embedded;embeddedPrefix:discount_"`
	Window      `gorm:"embedded"`
	IsActive    bool      `json:"is_active"   gorm:"not null;index"`
	AppliesTo   AppliesTo `json:"applies_to"  gorm:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Products []Product `json:"products,omitempty" gorm:"-"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string { return "campaigns" }

// Offer is a standing deal on a set of products, mirrored on every listed
// product's Offers field through offer_products.
type Offer struct {
	ID                 string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	Name               string    `json:"name"                gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug               string    `json:"slug"                gorm:"type:varchar(255);not null;uniqueIndex"`
	Description        string    `json:"description"         gorm:"type:text"`
	Discount           Discount  `json:"discount"            gorm:"embedded;embeddedPrefix:discount_"`
	Window             `gorm:"embedded"`
	IsActive           bool      `json:"is_active"           gorm:"not null;index"`
	ApplicableProducts []string  `json:"applicable_products" gorm:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Products []Product `json:"products,omitempty" gorm:"-"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string { return "offers" }

// Coupon is a redeemable code applied at order time. A zero UsageLimit
// means unlimited redemptions.
type Coupon struct {
	ID            string          `json:"id"              gorm:"type:char(36);primaryKey"`
	Code          string          `json:"code"            gorm:"type:varchar(64);not null;uniqueIndex"`
	Description   string          `json:"description"     gorm:"type:text"`
	Discount      Discount        `json:"discount"        gorm:"embedded;embeddedPrefix:discount_"`
	MinOrderValue decimal.Decimal `json:"min_order_value" gorm:"type:decimal(12,2);not null"`
	UsageLimit    int             `json:"usage_limit"     gorm:"not null;default:0"`
	UsedCount     int             `json:"used_count"      gorm:"not null;default:0"`
	Window        `gorm:"embedded"`
	IsActive      bool      `json:"is_active"  gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Coupon.
func (Coupon) TableName() string { return "coupons" }

// Exhausted reports whether the coupon has no redemptions left.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}

// CampaignProduct is one edge of the campaign/product reference set.
type CampaignProduct struct {
	CampaignID string `gorm:"type:char(36);primaryKey"`
	ProductID  string `gorm:"type:char(36);primaryKey;index"`
}

// TableName returns the database table name for CampaignProduct.
func (CampaignProduct) TableName() string { return "campaign_products" }

// OfferProduct is one edge of the offer/product reference set.
type OfferProduct struct {
	OfferID   string `gorm:"type:char(36);primaryKey"`
	ProductID string `gorm:"type:char(36);primaryKey;index"`
}

// TableName returns the database table name for OfferProduct.
func (OfferProduct) TableName() string { return "offer_products" }
