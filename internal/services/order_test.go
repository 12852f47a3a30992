package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

type orderFixture struct {
	db       *gorm.DB
	products *ProductService
	coupons  *CouponService
	carts    *CartService
	orders   *OrderService
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := newTestDB(t)
	gw := newTestCache()
	return &orderFixture{
		db:       db,
		products: NewProductService(db, gw),
		coupons:  NewCouponService(db, gw),
		carts:    NewCartService(db, gw),
		orders:   NewOrderService(db, gw),
	}
}

func (f *orderFixture) product(t *testing.T, name string, active bool, variants ...domain.Variant) *domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), &domain.Product{Name: name, IsActive: active, Variants: variants})
	require.NoError(t, err)
	return p
}

func (f *orderFixture) stock(t *testing.T, variantID string) (stock, sold int) {
	t.Helper()
	var v domain.Variant
	require.NoError(t, f.db.First(&v, "id = ?", variantID).Error)
	return v.Stock, v.Sold
}

func variant(sku string, price string, stock int) domain.Variant {
	return domain.Variant{SKU: sku, Price: decimal.RequireFromString(price), Stock: stock}
}

func checkout(lines ...OrderLine) OrderInput {
	return OrderInput{
		Items: lines,
		ShippingAddress: domain.Address{
			FullName:   "Ada Lovelace",
			Line1:      "12 St James's Square",
			City:       "London",
			PostalCode: "SW1Y 4JH",
			Country:    "GB",
		},
		PaymentMethod: PaymentCard,
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestOrderCreate_SnapshotsPricesAndTakesStock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	sale := variant("MUG-1", "12.00", 5)
	sale.SalePrice = decimal.NewNullDecimal(decimal.RequireFromString("9.99"))
	mug := f.product(t, "Mug", true, sale)

	o, replayed, err := f.orders.Create(ctx, "u1", "", checkout(OrderLine{ProductID: mug.ID, Quantity: 2}))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.EqualValues(t, 1, o.ID)
	assert.Equal(t, domain.OrderPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Mug", o.Items[0].Name)
	assert.Equal(t, "MUG-1", o.Items[0].SKU)
	assertDec(t, "9.99", o.Items[0].UnitPrice)
	assertDec(t, "19.98", o.Items[0].LineTotal)
	assertDec(t, "19.98", o.Subtotal)
	assertDec(t, "19.98", o.Total)

	stock, sold := f.stock(t, mug.Variants[0].ID)
	assert.Equal(t, 3, stock)
	assert.Equal(t, 2, sold)

	// Later price changes do not touch the placed order.
	_, err = f.products.UpdateVariant(ctx, mug.ID, mug.Variants[0].ID,
		&domain.Variant{Price: decimal.NewFromInt(50)}, []string{"price", "sale_price"})
	require.NoError(t, err)
	got, err := f.orders.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assertDec(t, "9.99", got.Items[0].UnitPrice)

	o2, _, err := f.orders.Create(ctx, "u1", "", checkout(OrderLine{ProductID: mug.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, o2.ID, "order numbers are sequential")
	assertDec(t, "50", o2.Total)
}

func TestOrderCreate_RollsBackOnFailure(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 5))
	plate := f.product(t, "Plate", true, variant("PL-1", "4", 1))

	_, _, err := f.orders.Create(ctx, "u1", "", checkout(
		OrderLine{ProductID: mug.ID, Quantity: 2},
		OrderLine{ProductID: plate.ID, Quantity: 3},
	))
	assert.ErrorIs(t, err, ErrBadRequest)

	stock, sold := f.stock(t, mug.Variants[0].ID)
	assert.Equal(t, 5, stock, "first line's stock must be restored by rollback")
	assert.Zero(t, sold)

	var n int64
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&n).Error)
	assert.Zero(t, n)

	o, _, err := f.orders.Create(ctx, "u1", "", checkout(OrderLine{ProductID: mug.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, o.ID, "a rolled back order does not consume a number")
}

func TestOrderCreate_Rejects(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 5))
	hidden := f.product(t, "Hidden", false, variant("HID-1", "10", 5))
	multi := f.product(t, "Shirt", true, variant("SH-S", "20", 5), variant("SH-M", "20", 5))
	bare := f.product(t, "Bare", true)

	noAddress := checkout(OrderLine{ProductID: mug.ID, Quantity: 1})
	noAddress.ShippingAddress.City = ""
	badPayment := checkout(OrderLine{ProductID: mug.ID, Quantity: 1})
	badPayment.PaymentMethod = "barter"

	cases := []struct {
		name string
		in   OrderInput
		kind error
	}{
		{"no items", checkout(), ErrBadRequest},
		{"zero quantity", checkout(OrderLine{ProductID: mug.ID}), ErrBadRequest},
		{"malformed product", checkout(OrderLine{ProductID: "x", Quantity: 1}), ErrBadRequest},
		{"missing address", noAddress, ErrBadRequest},
		{"unknown payment", badPayment, ErrBadRequest},
		{"unknown product", checkout(OrderLine{ProductID: uuid.NewString(), Quantity: 1}), ErrNotFound},
		{"inactive product", checkout(OrderLine{ProductID: hidden.ID, Quantity: 1}), ErrBadRequest},
		{"ambiguous variant", checkout(OrderLine{ProductID: multi.ID, Quantity: 1}), ErrBadRequest},
		{"no variants", checkout(OrderLine{ProductID: bare.ID, Quantity: 1}), ErrBadRequest},
		{"foreign variant", checkout(OrderLine{ProductID: mug.ID, VariantID: multi.Variants[0].ID, Quantity: 1}), ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.orders.Create(ctx, "u1", "", tc.in)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	o, _, err := f.orders.Create(ctx, "u1", "", checkout(OrderLine{ProductID: multi.ID, VariantID: multi.Variants[1].ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, multi.Variants[1].ID, o.Items[0].VariantID)
}

func TestOrderCreate_AppliesCoupon(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "25", 10))
	c, err := f.coupons.Create(ctx, &domain.Coupon{
		Code:          "save10",
		Discount:      domain.Discount{Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
		MinOrderValue: decimal.NewFromInt(30),
		UsageLimit:    1,
		IsActive:      true,
	})
	require.NoError(t, err)

	in := checkout(OrderLine{ProductID: mug.ID, Quantity: 1})
	in.CouponCode = "SAVE10"
	_, _, err = f.orders.Create(ctx, "u1", "", in)
	assert.ErrorIs(t, err, ErrBadRequest, "below minimum order value")

	in = checkout(OrderLine{ProductID: mug.ID, Quantity: 2})
	in.CouponCode = " save10 "
	o, _, err := f.orders.Create(ctx, "u1", "", in)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assertDec(t, "50", o.Subtotal)
	assertDec(t, "5", o.Discount)
	assertDec(t, "45", o.Total)

	got, err := f.coupons.Get(ctx, c.ID, []string{"used_count"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)

	_, _, err = f.orders.Create(ctx, "u1", "", in)
	assert.ErrorIs(t, err, ErrBadRequest, "usage limit reached")

	in.CouponCode = "NOPE"
	_, _, err = f.orders.Create(ctx, "u1", "", in)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestOrderCreate_FromCart(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 10))
	plate := f.product(t, "Plate", true, variant("PL-1", "4", 10))

	in := checkout()
	in.FromCart = true
	_, _, err := f.orders.Create(ctx, "u1", "", in)
	assert.ErrorIs(t, err, ErrBadRequest, "empty cart")

	_, err = f.carts.AddItem(ctx, "u1", mug.ID, mug.Variants[0].ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", plate.ID, "", 3)
	require.NoError(t, err)

	withItems := in
	withItems.Items = []OrderLine{{ProductID: mug.ID, Quantity: 1}}
	_, _, err = f.orders.Create(ctx, "u1", "", withItems)
	assert.ErrorIs(t, err, ErrBadRequest, "items and from_cart are exclusive")

	o, _, err := f.orders.Create(ctx, "u1", "", in)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assertDec(t, "32", o.Total)

	c, err := f.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestOrderCreate_IdempotencyKeyReplays(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 10))
	in := checkout(OrderLine{ProductID: mug.ID, Quantity: 2})

	first, replayed, err := f.orders.Create(ctx, "u1", "key-1", in)
	require.NoError(t, err)
	assert.False(t, replayed)

	again, replayed, err := f.orders.Create(ctx, "u1", "key-1", in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)

	stock, _ := f.stock(t, mug.Variants[0].ID)
	assert.Equal(t, 8, stock, "stock taken once")

	// Keys are per user.
	other, replayed, err := f.orders.Create(ctx, "u2", "key-1", in)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestOrderGetAndList(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 10))
	line := OrderLine{ProductID: mug.ID, Quantity: 1}
	o1, _, err := f.orders.Create(ctx, "u1", "", checkout(line))
	require.NoError(t, err)
	_, _, err = f.orders.Create(ctx, "u1", "", checkout(line))
	require.NoError(t, err)
	_, _, err = f.orders.Create(ctx, "u2", "", checkout(line))
	require.NoError(t, err)

	_, err = f.orders.Get(ctx, "u2", o1.ID)
	assert.ErrorIs(t, err, ErrNotFound, "other users' orders are hidden")
	_, err = f.orders.Get(ctx, "", o1.ID)
	assert.NoError(t, err)

	page, err := f.orders.ListForUser(ctx, "u1", ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Pagination.Items)
	for _, o := range page.Items {
		assert.Equal(t, "u1", o.UserID)
	}

	all, err := f.orders.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Pagination.Items)

	byUser, err := f.orders.List(ctx, ListQuery{Filters: map[string]any{"user_id": "u2"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byUser.Pagination.Items)

	_, err = f.orders.UpdateStatus(ctx, o1.ID, domain.OrderProcessing)
	require.NoError(t, err)
	pending, err := f.orders.List(ctx, ListQuery{Filters: map[string]any{"status": "pending"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.Pagination.Items, "status change invalidates the admin list")

	_, err = f.orders.List(ctx, ListQuery{Filters: map[string]any{"status": "lost"}})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.orders.ListForUser(ctx, "u1", ListQuery{Filters: map[string]any{"user_id": "u2"}})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestOrderUpdateStatus_TransitionsAndRestock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	mug := f.product(t, "Mug", true, variant("MUG-1", "10", 10))
	o, _, err := f.orders.Create(ctx, "u1", "", checkout(OrderLine{ProductID: mug.ID, Quantity: 4}))
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, o.ID, domain.OrderDelivered)
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.orders.UpdateStatus(ctx, o.ID, "lost")
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = f.orders.UpdateStatus(ctx, 999, domain.OrderProcessing)
	assert.ErrorIs(t, err, ErrNotFound)

	// Warm the user's view so the change must invalidate it.
	_, err = f.orders.Get(ctx, "u1", o.ID)
	require.NoError(t, err)

	got, err := f.orders.UpdateStatus(ctx, o.ID, domain.OrderProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	mine, err := f.orders.Get(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, mine.Status)

	stock, _ := f.stock(t, mug.Variants[0].ID)
	require.Equal(t, 6, stock)

	got, err = f.orders.UpdateStatus(ctx, o.ID, domain.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	stock, sold := f.stock(t, mug.Variants[0].ID)
	assert.Equal(t, 10, stock)
	assert.Zero(t, sold)

	_, err = f.orders.UpdateStatus(ctx, o.ID, domain.OrderPending)
	assert.ErrorIs(t, err, ErrBadRequest, "cancelled is terminal")
}
