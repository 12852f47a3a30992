package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderReturned},
	OrderDelivered:  {OrderReturned},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderReturned:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Address is a postal shipping address, embedded in Order with the
// "shipping_" column prefix.
type Address struct {
	FullName   string `json:"full_name"   gorm:"type:varchar(255)"`
	Line1      string `json:"line1"       gorm:"type:varchar(255)"`
	Line2      string `json:"line2"       gorm:"type:varchar(255)"`
	City       string `json:"city"        gorm:"type:varchar(128)"`
	PostalCode string `json:"postal_code" gorm:"type:varchar(32)"`
	Country    string `json:"country"     gorm:"type:varchar(128)"`
	Phone      string `json:"phone"       gorm:"type:varchar(64)"`
}

// Order is an immutable purchase snapshot. IDs are sequential and assigned
// from the "orders" counter inside the creating transaction.
type Order struct {
	ID              int64           `json:"id"               gorm:"primaryKey;autoIncrement:false"`
	UserID          string          `json:"user_id"          gorm:"type:varchar(64);not null;index"`
	Status          OrderStatus     `json:"status"           gorm:"type:varchar(16);not null;index"`
	Items           []OrderItem     `json:"items"            gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	ShippingAddress Address         `json:"shipping_address" gorm:"embedded;embeddedPrefix:shipping_"`
	PaymentMethod   string          `json:"payment_method"   gorm:"type:varchar(32);not null"`
	CouponCode      string          `json:"coupon_code,omitempty" gorm:"type:varchar(64)"`
	Subtotal        decimal.Decimal `json:"subtotal"         gorm:"type:decimal(12,2);not null"`
	Discount        decimal.Decimal `json:"discount"         gorm:"type:decimal(12,2);not null"`
	Total           decimal.Decimal `json:"total"            gorm:"type:decimal(12,2);not null"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// OrderItem is a purchased line with the price captured at purchase time.
type OrderItem struct {
	ID        string          `json:"id"                   gorm:"type:char(36);primaryKey"`
	OrderID   int64           `json:"order_id"             gorm:"not null;index"`
	ProductID string          `json:"product_id"           gorm:"type:char(36);not null;index"`
	VariantID string          `json:"variant_id,omitempty" gorm:"type:varchar(36)"`
	Name      string          `json:"name"                 gorm:"type:varchar(255);not null"`
	SKU       string          `json:"sku,omitempty"        gorm:"column:sku;type:varchar(64)"`
	Quantity  int             `json:"quantity"             gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price"           gorm:"type:decimal(12,2);not null"`
	LineTotal decimal.Decimal `json:"line_total"           gorm:"type:decimal(12,2);not null"`
}

// TableName returns the database table name for OrderItem.
func (OrderItem) TableName() string { return "order_items" }

// Counter is a named monotonically increasing sequence.
type Counter struct {
	Name  string `gorm:"type:varchar(64);primaryKey"`
	Value int64  `gorm:"not null"`
}

// TableName returns the database table name for Counter.
func (Counter) TableName() string { return "counters" }
