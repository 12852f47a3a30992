package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

func newCouponService(t *testing.T) *CouponService {
	t.Helper()
	return NewCouponService(newTestDB(t), newTestCache())
}

func tenPercent() domain.Discount {
	return domain.Discount{Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10)}
}

func TestCouponCreate_NormalizesAndGeneratesCodes(t *testing.T) {
	s := newCouponService(t)
	ctx := context.Background()

	c, err := s.Create(ctx, &domain.Coupon{Code: " welcome-5 ", Discount: tenPercent(), UsedCount: 42})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME-5", c.Code)
	assert.Zero(t, c.UsedCount, "used_count is not client-settable")

	gen, err := s.Create(ctx, &domain.Coupon{Discount: tenPercent()})
	require.NoError(t, err)
	assert.Regexp(t, `^CPN-[0-9A-F]{8}$`, gen.Code)

	_, err = s.Create(ctx, &domain.Coupon{Code: "Welcome-5", Discount: tenPercent()})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCouponCreate_Validation(t *testing.T) {
	s := newCouponService(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	cases := map[string]*domain.Coupon{
		"short code":       {Code: "AB", Discount: tenPercent()},
		"spaces in code":   {Code: "TWO WORDS", Discount: tenPercent()},
		"missing discount": {Code: "NODISC"},
		"negative minimum": {Code: "NEGMIN", Discount: tenPercent(), MinOrderValue: decimal.NewFromInt(-1)},
		"negative limit":   {Code: "NEGLIM", Discount: tenPercent(), UsageLimit: -1},
		"inverted window":  {Code: "WINDOW", Discount: tenPercent(), Window: domain.Window{StartsAt: &now, EndsAt: &earlier}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, c)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestCouponUpdate_PartialWindowKeepsOrder(t *testing.T) {
	s := newCouponService(t)
	ctx := context.Background()
	day := func(d int) *time.Time {
		v := time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	c, err := s.Create(ctx, &domain.Coupon{Code: "JUNE", Discount: tenPercent(), IsActive: true,
		Window: domain.Window{StartsAt: day(1), EndsAt: day(3)}})
	require.NoError(t, err)

	_, err = s.Update(ctx, c.ID, &domain.Coupon{Window: domain.Window{StartsAt: day(6)}}, []string{"starts_at"})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = s.Update(ctx, c.ID, &domain.Coupon{Window: domain.Window{EndsAt: day(1)}}, []string{"ends_at"})
	assert.ErrorIs(t, err, ErrBadRequest)

	// The coupon stays redeemable inside its stored window.
	s.Now = func() time.Time { return day(2).Add(time.Hour) }
	_, err = s.Validate(ctx, "JUNE", decimal.NewFromInt(50))
	require.NoError(t, err)

	got, err := s.Update(ctx, c.ID, &domain.Coupon{Window: domain.Window{StartsAt: day(2)}}, []string{"starts_at"})
	require.NoError(t, err)
	assert.True(t, got.Window.StartsAt.Equal(*day(2)))
	assert.True(t, got.Window.EndsAt.Equal(*day(3)))
}

func TestCouponValidate(t *testing.T) {
	s := newCouponService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	yesterday, lastWeek := now.Add(-24*time.Hour), now.Add(-7*24*time.Hour)

	mk := func(c *domain.Coupon) {
		t.Helper()
		_, err := s.Create(ctx, c)
		require.NoError(t, err)
	}
	mk(&domain.Coupon{Code: "TEN", Discount: tenPercent(), IsActive: true, MinOrderValue: decimal.NewFromInt(20)})
	mk(&domain.Coupon{Code: "BIGFIXED", IsActive: true,
		Discount: domain.Discount{Type: domain.DiscountFixedAmount, Value: decimal.NewFromInt(150)}})
	mk(&domain.Coupon{Code: "OFF", Discount: tenPercent(), IsActive: false})
	mk(&domain.Coupon{Code: "EXPIRED", Discount: tenPercent(), IsActive: true,
		Window: domain.Window{StartsAt: &lastWeek, EndsAt: &yesterday}})
	mk(&domain.Coupon{Code: "ONCE", Discount: tenPercent(), IsActive: true, UsageLimit: 1})
	require.NoError(t, s.DB.Model(&domain.Coupon{}).Where("code = ?", "ONCE").Update("used_count", 1).Error)

	q, err := s.Validate(ctx, " ten ", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "TEN", q.Code)
	assertDec(t, "10", q.Discount)
	assertDec(t, "90", q.Total)

	q, err = s.Validate(ctx, "BIGFIXED", decimal.NewFromInt(100))
	require.NoError(t, err)
	assertDec(t, "100", q.Discount)
	assertDec(t, "0", q.Total)

	_, err = s.Validate(ctx, "NOPE", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrNotFound)

	for _, code := range []string{"OFF", "EXPIRED", "ONCE"} {
		_, err = s.Validate(ctx, code, decimal.NewFromInt(100))
		assert.ErrorIs(t, err, ErrBadRequest, code)
	}
	_, err = s.Validate(ctx, "TEN", decimal.NewFromInt(19))
	assert.ErrorIs(t, err, ErrBadRequest, "below minimum")
	_, err = s.Validate(ctx, "", decimal.NewFromInt(19))
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = s.Validate(ctx, "TEN", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestCouponUpdate_CodeStaysUnique(t *testing.T) {
	s := newCouponService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, &domain.Coupon{Code: "AAA", Discount: tenPercent()})
	require.NoError(t, err)
	_, err = s.Create(ctx, &domain.Coupon{Code: "BBB", Discount: tenPercent()})
	require.NoError(t, err)

	_, err = s.Update(ctx, a.ID, &domain.Coupon{Code: "bbb"}, []string{"code"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Update(ctx, a.ID, &domain.Coupon{Description: "spring"}, []string{"description"})
	require.NoError(t, err)
	assert.Equal(t, "AAA", got.Code)
	assert.Equal(t, "spring", got.Description)

	_, err = s.Update(ctx, a.ID, &domain.Coupon{UsedCount: 3}, []string{"used_count"})
	assert.ErrorIs(t, err, ErrBadRequest)
}
