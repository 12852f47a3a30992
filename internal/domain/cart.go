package domain

import "time"

// Cart is the shopping cart of a single user (unique on user_id). It is
// created lazily on first access.
type Cart struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex"`
	Items     []CartItem `json:"items"      gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Cart.
func (Cart) TableName() string { return "carts" }

// CartItem is one line of a cart. VariantID is empty when the line refers
// to the product as a whole; it is NOT NULL so that the composite unique
// index also collapses variant-less lines.
type CartItem struct {
	ID        string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	CartID    string    `json:"cart_id"              gorm:"type:char(36);not null;uniqueIndex:ux_cart_item,priority:1"`
	ProductID string    `json:"product_id"           gorm:"type:char(36);not null;uniqueIndex:ux_cart_item,priority:2"`
	VariantID string    `json:"variant_id,omitempty" gorm:"type:varchar(36);not null;default:'';uniqueIndex:ux_cart_item,priority:3"`
	Quantity  int       `json:"quantity"             gorm:"not null;check:quantity > 0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CartItem.
func (CartItem) TableName() string { return "cart_items" }

// Wishlist is the saved-for-later list of a single user (unique on user_id).
type Wishlist struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex"`
	Items     []WishlistItem `json:"items"      gorm:"foreignKey:WishlistID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Wishlist.
func (Wishlist) TableName() string { return "wishlists" }

// WishlistItem is a product saved to a wishlist; a product appears at most
// once per wishlist.
type WishlistItem struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	WishlistID string    `json:"wishlist_id" gorm:"type:char(36);not null;uniqueIndex:ux_wishlist_item,priority:1"`
	ProductID  string    `json:"product_id"  gorm:"type:char(36);not null;uniqueIndex:ux_wishlist_item,priority:2"`
	AddedAt    time.Time `json:"added_at"    gorm:"not null"`
}

// TableName returns the database table name for WishlistItem.
func (WishlistItem) TableName() string { return "wishlist_items" }
