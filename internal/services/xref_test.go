package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

type promoFixture struct {
	db        *gorm.DB
	gw        *cache.Gateway
	products  *ProductService
	campaigns *CampaignService
	offers    *OfferService
}

func newPromoFixture(t *testing.T) *promoFixture {
	t.Helper()
	db := newTestDB(t)
	gw := newTestCache()
	return &promoFixture{
		db:        db,
		gw:        gw,
		products:  NewProductService(db, gw),
		campaigns: NewCampaignService(db, gw, 30*24*time.Hour),
		offers:    NewOfferService(db, gw, 30*24*time.Hour),
	}
}

func (f *promoFixture) product(t *testing.T, name string) string {
	t.Helper()
	p, err := f.products.Create(context.Background(), &domain.Product{
		Name:     name,
		IsActive: true,
		Variants: []domain.Variant{{SKU: "sku-" + Slugify(name), Price: decimal.RequireFromString("10.00"), Stock: 5}},
	})
	require.NoError(t, err)
	return p.ID
}

func percentOff(v int64) domain.Discount {
	return domain.Discount{Type: domain.DiscountPercentage, Value: decimal.NewFromInt(v)}
}

func (f *promoFixture) campaignsOf(t *testing.T, productID string) []string {
	t.Helper()
	p, err := f.products.Get(context.Background(), productID, nil)
	require.NoError(t, err)
	return p.Campaigns
}

func TestCampaignCreate_LinksProductsAndInvalidatesProductList(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2, p3 := f.product(t, "Mug"), f.product(t, "Plate"), f.product(t, "Bowl")

	// Warm product list and details.
	_, err := f.products.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, f.campaignsOf(t, p1))

	c := countQueries(t, f.db)
	_, err = f.products.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Zero(t, c.reads.Load(), "warm list should be cached")

	camp, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Summer Sale",
		Discount:  percentOff(20),
		IsActive:  true,
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2, p1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "summer-sale", camp.Slug)
	assert.ElementsMatch(t, []string{p1, p2}, camp.AppliesTo.ProductIDs)

	assert.Equal(t, []string{camp.ID}, f.campaignsOf(t, p1))
	assert.Equal(t, []string{camp.ID}, f.campaignsOf(t, p2))
	assert.Empty(t, f.campaignsOf(t, p3))

	before := c.reads.Load()
	page, err := f.products.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Greater(t, c.reads.Load(), before, "product list must be re-queried")
	for _, p := range page.Items {
		if p.ID == p1 || p.ID == p2 {
			assert.Equal(t, []string{camp.ID}, p.Campaigns)
		}
	}
}

func TestCampaignUpdate_AppliesSymmetricDifference(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2, p3 := f.product(t, "Mug"), f.product(t, "Plate"), f.product(t, "Bowl")

	camp, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Summer Sale",
		Discount:  percentOff(10),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2}},
	})
	require.NoError(t, err)

	got, err := f.campaigns.Update(ctx, camp.ID,
		&domain.Campaign{AppliesTo: domain.AppliesTo{ProductIDs: []string{p2, p3}}},
		[]string{"applies_to"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p2, p3}, got.AppliesTo.ProductIDs)

	assert.Empty(t, f.campaignsOf(t, p1))
	assert.Equal(t, []string{camp.ID}, f.campaignsOf(t, p2))
	assert.Equal(t, []string{camp.ID}, f.campaignsOf(t, p3))

	// Unrelated updates leave the set alone.
	got, err = f.campaigns.Update(ctx, camp.ID, &domain.Campaign{Description: "hot"}, []string{"description"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p2, p3}, got.AppliesTo.ProductIDs)
	assert.Equal(t, "hot", got.Description)
}

func TestCampaignDelete_PullsEveryReference(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2 := f.product(t, "Mug"), f.product(t, "Plate")

	camp, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Flash",
		Discount:  percentOff(5),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{camp.ID}, f.campaignsOf(t, p1))

	id, err := f.campaigns.Delete(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, camp.ID, id)

	assert.Empty(t, f.campaignsOf(t, p1))
	assert.Empty(t, f.campaignsOf(t, p2))
	owners, err := repo.OwnerIDsByProduct(ctx, f.db, repo.CampaignProducts, []string{p1, p2})
	require.NoError(t, err)
	assert.Empty(t, owners[p1])
	assert.Empty(t, owners[p2])

	_, err = f.campaigns.Get(ctx, camp.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignCreate_RejectsBadProductsWithoutWrite(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1 := f.product(t, "Mug")

	c := countQueries(t, f.db)
	_, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Ghost",
		Discount:  percentOff(5),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, uuid.NewString()}},
	})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Ghost",
		Discount:  percentOff(5),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{"nope"}},
	})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Zero(t, c.writes.Load())
	assert.Empty(t, f.campaignsOf(t, p1))
}

func TestCampaignCreate_ValidatesDiscountAndWindow(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	cases := []*domain.Campaign{
		{Name: "A", Discount: domain.Discount{Type: "bogus", Value: decimal.NewFromInt(5)}},
		{Name: "B", Discount: percentOff(0)},
		{Name: "C", Discount: percentOff(150)},
		{Name: "D", Discount: percentOff(10), Window: domain.Window{StartsAt: &start, EndsAt: &end}},
	}
	for _, c := range cases {
		_, err := f.campaigns.Create(ctx, c)
		assert.ErrorIs(t, err, ErrBadRequest, c.Name)
	}

	fixed := domain.Discount{Type: domain.DiscountFixedAmount, Value: decimal.NewFromInt(150)}
	_, err := f.campaigns.Create(ctx, &domain.Campaign{Name: "E", Discount: fixed})
	assert.NoError(t, err, "fixed amounts are not capped at 100")
}

func TestPromotionUpdate_MergesPatchedBoundIntoStoredWindow(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	day := func(d int) *time.Time {
		v := time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	c, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name: "June", Discount: percentOff(10), Window: domain.Window{StartsAt: day(1), EndsAt: day(3)},
	})
	require.NoError(t, err)

	_, err = f.campaigns.Update(ctx, c.ID, &domain.Campaign{Window: domain.Window{EndsAt: day(1)}}, []string{"ends_at"})
	assert.ErrorIs(t, err, ErrBadRequest, "end on the stored start")
	_, err = f.campaigns.Update(ctx, c.ID, &domain.Campaign{Window: domain.Window{StartsAt: day(5)}}, []string{"starts_at"})
	assert.ErrorIs(t, err, ErrBadRequest, "start after the stored end")

	got, err := f.campaigns.Get(ctx, c.ID, nil)
	require.NoError(t, err)
	assert.True(t, got.Window.EndsAt.After(*got.Window.StartsAt), "stored window left intact")

	// Moving one bound within the stored window, or clearing it, is fine.
	_, err = f.campaigns.Update(ctx, c.ID, &domain.Campaign{Window: domain.Window{EndsAt: day(10)}}, []string{"ends_at"})
	require.NoError(t, err)
	_, err = f.campaigns.Update(ctx, c.ID, &domain.Campaign{}, []string{"starts_at"})
	require.NoError(t, err)

	o, err := f.offers.Create(ctx, &domain.Offer{
		Name: "Weekend", Discount: percentOff(5), Window: domain.Window{StartsAt: day(6), EndsAt: day(8)},
	})
	require.NoError(t, err)
	_, err = f.offers.Update(ctx, o.ID, &domain.Offer{Window: domain.Window{EndsAt: day(2)}}, []string{"ends_at"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestPromotionCheck_RunsInsideWriteTransaction(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2 := f.product(t, "Mug"), f.product(t, "Plate")

	var inTx []bool
	check := f.campaigns.Def.Check
	f.campaigns.Def.Check = func(ctx context.Context, db *gorm.DB, c *domain.Campaign, id string, fields []string) error {
		_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
		inTx = append(inTx, ok)
		return check(ctx, db, c, id, fields)
	}

	c, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name: "Spring", Discount: percentOff(5), AppliesTo: domain.AppliesTo{ProductIDs: []string{p1}},
	})
	require.NoError(t, err)
	_, err = f.campaigns.Update(ctx, c.ID, &domain.Campaign{AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2}}}, []string{"applies_to"})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true}, inTx, "product existence is checked in the transaction that links them")
}

func TestOfferLifecycle_ApplicableProducts(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2 := f.product(t, "Mug"), f.product(t, "Plate")

	o, err := f.offers.Create(ctx, &domain.Offer{
		Name:               "Bundle",
		Discount:           domain.Discount{Type: domain.DiscountFixedAmount, Value: decimal.NewFromInt(3)},
		ApplicableProducts: []string{p1},
	})
	require.NoError(t, err)

	p, err := f.products.Get(ctx, p1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, p.Offers)
	assert.Empty(t, p.Campaigns)

	_, err = f.offers.Update(ctx, o.ID, &domain.Offer{ApplicableProducts: []string{p2}}, []string{"applicable_products"})
	require.NoError(t, err)
	p, err = f.products.Get(ctx, p1, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Offers)
	p, err = f.products.Get(ctx, p2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, p.Offers)
}

func TestGetWithProducts(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2 := f.product(t, "Plate"), f.product(t, "Mug")

	camp, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Summer",
		Discount:  percentOff(10),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2}},
	})
	require.NoError(t, err)

	plain, err := f.campaigns.GetWithProducts(ctx, camp.ID, nil, false)
	require.NoError(t, err)
	assert.Empty(t, plain.Products)

	full, err := f.campaigns.GetWithProducts(ctx, camp.ID, []string{"name"}, true)
	require.NoError(t, err)
	require.Len(t, full.Products, 2)
	assert.Equal(t, "Mug", full.Products[0].Name)
	assert.Equal(t, "Plate", full.Products[1].Name)

	// The cached value was not mutated by the expansion.
	again, err := f.campaigns.GetWithProducts(ctx, camp.ID, []string{"name"}, false)
	require.NoError(t, err)
	assert.Empty(t, again.Products)
}

func TestProductDelete_RemovesReferencesFromOwners(t *testing.T) {
	f := newPromoFixture(t)
	ctx := context.Background()
	p1, p2 := f.product(t, "Mug"), f.product(t, "Plate")

	camp, err := f.campaigns.Create(ctx, &domain.Campaign{
		Name:      "Summer",
		Discount:  percentOff(10),
		AppliesTo: domain.AppliesTo{ProductIDs: []string{p1, p2}},
	})
	require.NoError(t, err)
	offer, err := f.offers.Create(ctx, &domain.Offer{
		Name:               "Bundle",
		Discount:           percentOff(5),
		ApplicableProducts: []string{p1},
	})
	require.NoError(t, err)

	_, err = f.products.Delete(ctx, p1)
	require.NoError(t, err)

	c, err := f.campaigns.Get(ctx, camp.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{p2}, c.AppliesTo.ProductIDs)
	o, err := f.offers.Get(ctx, offer.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, o.ApplicableProducts)

	var variants int64
	require.NoError(t, f.db.Model(&domain.Variant{}).Where("product_id = ?", p1).Count(&variants).Error)
	assert.Zero(t, variants)
}

func TestDiffIDs(t *testing.T) {
	added, removed := diffIDs([]string{"p1", "p2"}, []string{"p3", "p2"})
	assert.Equal(t, []string{"p3"}, added)
	assert.Equal(t, []string{"p1"}, removed)

	added, removed = diffIDs([]string{"a"}, []string{"a"})
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
