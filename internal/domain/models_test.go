package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Brand{}.TableName():           "brands",
		Category{}.TableName():        "categories",
		Store{}.TableName():           "stores",
		Product{}.TableName():         "products",
		Variant{}.TableName():         "product_variants",
		Review{}.TableName():          "product_reviews",
		FAQ{}.TableName():             "product_faqs",
		Campaign{}.TableName():        "campaigns",
		Offer{}.TableName():           "offers",
		Coupon{}.TableName():          "coupons",
		CampaignProduct{}.TableName(): "campaign_products",
		OfferProduct{}.TableName():    "offer_products",
		Cart{}.TableName():            "carts",
		CartItem{}.TableName():        "cart_items",
		Wishlist{}.TableName():        "wishlists",
		WishlistItem{}.TableName():    "wishlist_items",
		Order{}.TableName():           "orders",
		OrderItem{}.TableName():       "order_items",
		Counter{}.TableName():         "counters",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_EmbeddedColumns_AndUniqueIndexes(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Product{}, &Variant{}, &Campaign{}, &Coupon{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, col := range []string{"discount_type", "discount_value", "starts_at", "ends_at"} {
		if !m.HasColumn(&Campaign{}, col) {
			t.Fatalf("expected campaigns.%s", col)
		}
	}
	for _, col := range []string{"shipping_city", "shipping_postal_code"} {
		if !m.HasColumn(&Order{}, col) {
			t.Fatalf("expected orders.%s", col)
		}
	}
	if !m.HasIndex(&CartItem{}, "ux_cart_item") {
		t.Fatalf("expected unique index ux_cart_item on cart_items")
	}

	now := time.Now().UTC()
	p := &Product{ID: "p1", Name: "Mug", Slug: "mug", IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert product: %v", err)
	}
	v1 := &Variant{ID: "v1", ProductID: "p1", SKU: "MUG-1", Price: decimal.RequireFromString("9.50")}
	if err := db.Create(v1).Error; err != nil {
		t.Fatalf("insert variant: %v", err)
	}
	v2 := &Variant{ID: "v2", ProductID: "p1", SKU: "MUG-1", Price: decimal.NewFromInt(1)}
	if err := db.Create(v2).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate SKU")
	}

	var got Variant
	if err := db.First(&got, "id = ?", "v1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("9.5")) || got.SalePrice.Valid {
		t.Fatalf("unexpected variant prices: %+v", got)
	}

	// Variant-less cart lines collapse on the composite unique key.
	if err := db.Create(&Cart{ID: "c1", UserID: "u1"}).Error; err != nil {
		t.Fatalf("insert cart: %v", err)
	}
	if err := db.Create(&CartItem{ID: "i1", CartID: "c1", ProductID: "p1", Quantity: 1}).Error; err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if err := db.Create(&CartItem{ID: "i2", CartID: "c1", ProductID: "p1", Quantity: 1}).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate variant-less cart line")
	}
}

func TestDiscount_Apply(t *testing.T) {
	base := decimal.RequireFromString("80.00")
	cases := []struct {
		name string
		d    Discount
		want string
	}{
		{"percentage", Discount{Type: DiscountPercentage, Value: decimal.NewFromInt(25)}, "20"},
		{"fixed", Discount{Type: DiscountFixedAmount, Value: decimal.NewFromInt(15)}, "15"},
		{"fixed capped at base", Discount{Type: DiscountFixedAmount, Value: decimal.NewFromInt(500)}, "80"},
		{"unknown type", Discount{Type: "bogus", Value: decimal.NewFromInt(5)}, "0"},
		{"negative", Discount{Type: DiscountFixedAmount, Value: decimal.NewFromInt(-5)}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.Apply(base); !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("Apply = %s; want %s", got, tc.want)
			}
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	if !(Window{}).Contains(now) {
		t.Fatalf("open window should contain any instant")
	}
	if !(Window{StartsAt: &before, EndsAt: &after}).Contains(now) {
		t.Fatalf("expected now inside [before, after]")
	}
	if (Window{StartsAt: &after}).Contains(now) {
		t.Fatalf("window not yet started")
	}
	if (Window{EndsAt: &before}).Contains(now) {
		t.Fatalf("window already ended")
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	if !OrderPending.CanTransition(OrderProcessing) || !OrderPending.CanTransition(OrderCancelled) {
		t.Fatalf("pending should move to processing or cancelled")
	}
	if OrderPending.CanTransition(OrderDelivered) {
		t.Fatalf("pending must not jump to delivered")
	}
	if !OrderShipped.CanTransition(OrderReturned) || OrderCancelled.CanTransition(OrderPending) {
		t.Fatalf("unexpected transition table")
	}
	if OrderStatus("lost").Valid() || !OrderReturned.Valid() {
		t.Fatalf("Valid() mismatch")
	}
}

func TestVariant_EffectivePrice_And_CouponExhausted(t *testing.T) {
	v := Variant{Price: decimal.NewFromInt(10)}
	if !v.EffectivePrice().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("list price expected")
	}
	v.SalePrice = decimal.NewNullDecimal(decimal.NewFromInt(7))
	if !v.EffectivePrice().Equal(decimal.NewFromInt(7)) {
		t.Fatalf("sale price expected")
	}

	if (Coupon{UsageLimit: 0, UsedCount: 99}).Exhausted() {
		t.Fatalf("zero limit means unlimited")
	}
	if !(Coupon{UsageLimit: 2, UsedCount: 2}).Exhausted() {
		t.Fatalf("expected exhausted coupon")
	}
}
