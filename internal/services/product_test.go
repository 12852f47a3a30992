package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

func newProductService(t *testing.T) *ProductService {
	t.Helper()
	return NewProductService(newTestDB(t), newTestCache())
}

func TestProductCreate_WithVariantsAndFAQs(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, &domain.Product{
		Name:          "  Café Mug ",
		IsActive:      true,
		AverageRating: 4.9,
		Variants: []domain.Variant{
			{SKU: " mug-red ", Price: decimal.RequireFromString("12.50"), Stock: 3, Attributes: map[string]string{"color": "red"}},
			{SKU: "mug-blue", Price: decimal.RequireFromString("12.50"), SalePrice: decimal.NewNullDecimal(decimal.NewFromInt(10))},
		},
		FAQs: []domain.FAQ{{Question: "Dishwasher safe?", Answer: "Yes"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Café Mug", p.Name)
	assert.Equal(t, "cafe-mug", p.Slug)
	assert.Zero(t, p.AverageRating, "ratings come from reviews only")
	require.Len(t, p.Variants, 2)
	skus := []string{p.Variants[0].SKU, p.Variants[1].SKU}
	assert.ElementsMatch(t, []string{"MUG-RED", "MUG-BLUE"}, skus)
	require.Len(t, p.FAQs, 1)
	assert.Equal(t, p.ID, p.FAQs[0].ProductID)
}

func TestProductCreate_RejectsBadVariants(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, &domain.Product{
		Name:     "Plate",
		Variants: []domain.Variant{{SKU: "P-1", Price: decimal.Zero}},
	})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = s.Create(ctx, &domain.Product{
		Name: "Plate",
		Variants: []domain.Variant{
			{SKU: "P-1", Price: decimal.NewFromInt(1)},
			{SKU: "p-1", Price: decimal.NewFromInt(2)},
		},
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Create(ctx, &domain.Product{
		Name:     "Bowl",
		Variants: []domain.Variant{{SKU: "B-1", Price: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, &domain.Product{
		Name:     "Cup",
		Variants: []domain.Variant{{SKU: "b-1", Price: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, ErrConflict, "sku is globally unique")
}

func TestProductCreate_ChecksBrandAndCategory(t *testing.T) {
	db := newTestDB(t)
	gw := newTestCache()
	s := NewProductService(db, gw)
	brands := NewBrandService(db, gw)
	ctx := context.Background()

	missing := uuid.NewString()
	_, err := s.Create(ctx, &domain.Product{Name: "Mug", BrandID: &missing})
	assert.ErrorIs(t, err, ErrBadRequest)

	b, err := brands.Create(ctx, newBrand("Acme"))
	require.NoError(t, err)
	p, err := s.Create(ctx, &domain.Product{Name: "Mug", BrandID: &b.ID})
	require.NoError(t, err)
	require.NotNil(t, p.BrandID)
	assert.Equal(t, b.ID, *p.BrandID)

	page, err := s.List(ctx, ListQuery{Filters: map[string]any{"brand_id": b.ID}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Pagination.Items)
}

func TestProductList_FiltersAndSearch(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	for _, p := range []*domain.Product{
		{Name: "Red Mug", IsActive: true, Featured: true},
		{Name: "Blue Mug", IsActive: true},
		{Name: "Green Plate", IsActive: false, Description: "a mug-sized plate"},
	} {
		_, err := s.Create(ctx, p)
		require.NoError(t, err)
	}

	page, err := s.List(ctx, ListQuery{Filters: map[string]any{"is_active": true}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Pagination.Items)

	page, err = s.List(ctx, ListQuery{Filters: map[string]any{"featured": true}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Red Mug", page.Items[0].Name)

	page, err = s.List(ctx, ListQuery{Search: "mug", SortBy: "name"})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Blue Mug", page.Items[0].Name)

	_, err = s.List(ctx, ListQuery{Filters: map[string]any{"colour": "red"}})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestVariantLifecycle(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, &domain.Product{Name: "Mug"})
	require.NoError(t, err)

	v, err := s.AddVariant(ctx, p.ID, &domain.Variant{SKU: "mug-1", Price: decimal.NewFromInt(9), Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, "MUG-1", v.SKU)

	_, err = s.AddVariant(ctx, p.ID, &domain.Variant{SKU: "MUG-1", Price: decimal.NewFromInt(9)})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.AddVariant(ctx, uuid.NewString(), &domain.Variant{SKU: "X", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, got.Variants, 1, "detail cache dropped after AddVariant")

	upd, err := s.UpdateVariant(ctx, p.ID, v.ID, &domain.Variant{Stock: 10}, []string{"stock"})
	require.NoError(t, err)
	assert.Equal(t, 10, upd.Stock)
	assert.True(t, upd.Price.Equal(decimal.NewFromInt(9)), "price untouched")

	_, err = s.UpdateVariant(ctx, p.ID, v.ID,
		&domain.Variant{SalePrice: decimal.NewNullDecimal(decimal.NewFromInt(20))}, []string{"sale_price"})
	assert.ErrorIs(t, err, ErrBadRequest, "sale price above list price")

	_, err = s.UpdateVariant(ctx, p.ID, v.ID, &domain.Variant{Sold: 99}, []string{"sold"})
	assert.ErrorIs(t, err, ErrBadRequest)

	id, err := s.DeleteVariant(ctx, p.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)
	_, err = s.DeleteVariant(ctx, p.ID, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviews_RefreshRating(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, &domain.Product{Name: "Mug"})
	require.NoError(t, err)

	_, err = s.AddReview(ctx, p.ID, "u1", &domain.Review{Rating: 6})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = s.AddReview(ctx, p.ID, " ", &domain.Review{Rating: 3})
	assert.ErrorIs(t, err, ErrBadRequest)

	r1, err := s.AddReview(ctx, p.ID, "u1", &domain.Review{Rating: 5, Comment: " great "})
	require.NoError(t, err)
	assert.Equal(t, "great", r1.Comment)
	_, err = s.AddReview(ctx, p.ID, "u2", &domain.Review{Rating: 2})
	require.NoError(t, err)

	got, err := s.Get(ctx, p.ID, []string{"average_rating", "review_count"})
	require.NoError(t, err)
	assert.InDelta(t, 3.5, got.AverageRating, 0.001)
	assert.Equal(t, 2, got.ReviewCount)

	_, err = s.DeleteReview(ctx, p.ID, r1.ID)
	require.NoError(t, err)
	got, err = s.Get(ctx, p.ID, []string{"average_rating", "review_count"})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.AverageRating, 0.001)
	assert.Equal(t, 1, got.ReviewCount)
}

func TestFAQs(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, &domain.Product{Name: "Mug"})
	require.NoError(t, err)

	_, err = s.AddFAQ(ctx, p.ID, &domain.FAQ{Question: "Size?"})
	assert.ErrorIs(t, err, ErrBadRequest)

	f, err := s.AddFAQ(ctx, p.ID, &domain.FAQ{Question: "Size?", Answer: "350ml"})
	require.NoError(t, err)

	got, err := s.Get(ctx, p.ID, []string{"faqs"})
	require.NoError(t, err)
	require.Len(t, got.FAQs, 1)
	assert.Equal(t, "350ml", got.FAQs[0].Answer)

	_, err = s.DeleteFAQ(ctx, p.ID, f.ID)
	require.NoError(t, err)
	_, err = s.DeleteFAQ(ctx, p.ID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductUpdate_CannotWriteDerivedFields(t *testing.T) {
	s := newProductService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, &domain.Product{Name: "Mug"})
	require.NoError(t, err)

	for _, f := range []string{"average_rating", "campaigns", "variants"} {
		_, err = s.Update(ctx, p.ID, &domain.Product{}, []string{f})
		assert.ErrorIs(t, err, ErrBadRequest, f)
	}

	got, err := s.Update(ctx, p.ID, &domain.Product{Featured: true}, []string{"featured"})
	require.NoError(t, err)
	assert.True(t, got.Featured)
	assert.Equal(t, "Mug", got.Name)
}
