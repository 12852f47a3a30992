package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog item. Variants, reviews and FAQs are owned
// rows; Campaigns and Offers are reference sets hydrated from the
// campaign_products and offer_products join tables.
type Product struct {
	ID            string    `json:"id"                    gorm:"type:char(36);primaryKey"`
	Name          string    `json:"name"                  gorm:"type:varchar(255);not null;uniqueIndex"`
	Slug          string    `json:"slug"                  gorm:"type:varchar(255);not null;uniqueIndex"`
	Description   string    `json:"description"           gorm:"type:text"`
	BrandID       *string   `json:"brand_id,omitempty"    gorm:"type:char(36);index"`
	CategoryID    *string   `json:"category_id,omitempty" gorm:"type:char(36);index"`
	IsActive      bool      `json:"is_active"             gorm:"not null;index"`
	Featured      bool      `json:"featured"              gorm:"not null;index"`
	AverageRating float64   `json:"average_rating"        gorm:"not null;default:0"`
	ReviewCount   int       `json:"review_count"          gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Variants []Variant `json:"variants,omitempty" gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Reviews  []Review  `json:"reviews,omitempty"  gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	FAQs     []FAQ     `json:"faqs,omitempty"     gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	Campaigns []string `json:"campaigns,omitempty" gorm:"-"`
	Offers    []string `json:"offers,omitempty"    gorm:"-"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Variant is a purchasable configuration of a product. SKUs are globally
// unique. Stock is what can still be sold; Reserved and Sold are counters
// maintained by order placement.
type Variant struct {
	ID         string              `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID  string              `json:"product_id" gorm:"type:char(36);not null;index"`
	SKU        string              `json:"sku"        gorm:"column:sku;type:varchar(64);not null;uniqueIndex"`
	Price      decimal.Decimal     `json:"price"      gorm:"type:decimal(12,2);not null"`
	SalePrice  decimal.NullDecimal `json:"sale_price" gorm:"type:decimal(12,2)"`
	Stock      int                 `json:"stock"      gorm:"not null;default:0"`
	Reserved   int                 `json:"reserved"   gorm:"not null;default:0"`
	Sold       int                 `json:"sold"       gorm:"not null;default:0"`
	Attributes map[string]string   `json:"attributes,omitempty" gorm:"type:text;serializer:json"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// TableName returns the database table name for Variant.
func (Variant) TableName() string { return "product_variants" }

// EffectivePrice is the sale price when one is set, otherwise the list price.
func (v Variant) EffectivePrice() decimal.Decimal {
	if v.SalePrice.Valid {
		return v.SalePrice.Decimal
	}
	return v.Price
}

// Review is a user rating of a product.
type Review struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string    `json:"product_id" gorm:"type:char(36);not null;index"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Rating    int       `json:"rating"     gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment   string    `json:"comment"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "product_reviews" }

// FAQ is a question and answer pair shown on a product page.
type FAQ struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string    `json:"product_id" gorm:"type:char(36);not null;index"`
	Question  string    `json:"question"   gorm:"type:text;not null"`
	Answer    string    `json:"answer"     gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for FAQ.
func (FAQ) TableName() string { return "product_faqs" }
