// Package services – CouponService
//
// This file implements the coupon resource and the coupon checks shared
// with order placement. Codes are stored upper-cased; a coupon created
// without a code gets a generated one.
package services

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// CouponService provides coupon CRUD and code validation.
type CouponService struct {
	*Resource[domain.Coupon]

	// Now is the clock used for validity windows.
	Now func() time.Time
}

// CouponQuote is the outcome of applying a coupon to a subtotal.
type CouponQuote struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// NewCouponService wires the coupon resource.
func NewCouponService(db *gorm.DB, gw *cache.Gateway) *CouponService {
	fields := selfColumns("id", "code", "description", "min_order_value", "usage_limit", "used_count",
		"starts_at", "ends_at", "is_active", "created_at", "updated_at")
	fields["discount"] = []string{"discount_type", "discount_value"}

	return &CouponService{
		Now: time.Now,
		Resource: NewResource(db, gw, Definition[domain.Coupon]{
			Resource:   resCoupons,
			Label:      "coupon",
			Fields:     fields,
			Searchable: []string{"code", "description"},
			Filters: map[string]string{
				"is_active":     "is_active",
				"discount_type": "discount_type",
			},
			Sortable:    withTimestamps(timestampSort, "code", "starts_at", "ends_at", "used_count"),
			DefaultSort: "created_at",
			DefaultDesc: true,
			Updatable: []string{"code", "description", "discount", "min_order_value", "usage_limit",
				"starts_at", "ends_at", "is_active"},
			Unique: []Unique[domain.Coupon]{
				{Field: "code", Column: "code", Value: func(c *domain.Coupon) string { return c.Code }},
			},
			ID:        func(c *domain.Coupon) *string { return &c.ID },
			SetActive: func(c *domain.Coupon, v bool) { c.IsActive = v },
			Normalize: normalizeCoupon,
			Validate:  validateCoupon,
			Check: func(ctx context.Context, db *gorm.DB, c *domain.Coupon, id string, fields []string) error {
				return checkWindowUpdate(ctx, db, id, fields, c.Window, func(c *domain.Coupon) domain.Window { return c.Window })
			},
		}),
	}
}

// NewCouponCode returns "CPN-" followed by eight upper-case hex characters.
func NewCouponCode() string {
	u := uuid.New()
	return "CPN-" + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:8])
}

func normalizeCoupon(c *domain.Coupon) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		c.Code = NewCouponCode()
	}
	c.UsedCount = 0
}

func validateCoupon(c *domain.Coupon, fields []string) error {
	if wants(fields, "code") {
		err := validation.Validate(c.Code,
			validation.Required,
			validation.RuneLength(3, 64),
			validation.Match(couponCodeRE),
		)
		if err != nil {
			return invalid("code", err)
		}
	}
	if wants(fields, "discount") {
		if err := validateDiscount(c.Discount); err != nil {
			return err
		}
	}
	if wants(fields, "min_order_value") {
		if err := invalid("min_order_value", validation.Validate(c.MinOrderValue, validation.By(nonNegative))); err != nil {
			return err
		}
	}
	if wants(fields, "usage_limit") && c.UsageLimit < 0 {
		return badRequest("usage_limit must not be negative")
	}
	if wants(fields, "starts_at") || wants(fields, "ends_at") {
		return validateWindow(c.Window)
	}
	return nil
}

// checkRedeemable reports why c cannot be applied to subtotal at now.
func checkRedeemable(c *domain.Coupon, subtotal decimal.Decimal, now time.Time) error {
	switch {
	case !c.IsActive:
		return badRequest("coupon %s is not active", c.Code)
	case !c.Window.Contains(now):
		return badRequest("coupon %s is not valid at this time", c.Code)
	case c.Exhausted():
		return badRequest("coupon %s has reached its usage limit", c.Code)
	case subtotal.LessThan(c.MinOrderValue):
		return badRequest("coupon %s requires a minimum order of %s", c.Code, c.MinOrderValue.StringFixed(2))
	}
	return nil
}

// Validate applies the coupon identified by code to subtotal without
// redeeming it. Unknown codes yield NotFound; inactive, expired, exhausted
// coupons and subtotals below the minimum yield BadRequest.
func (s *CouponService) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*CouponQuote, error) {
	tr := otel.Tracer("services/CouponService")
	ctx, span := tr.Start(ctx, "Validate", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, badRequest("coupon code is required")
	}
	if subtotal.IsNegative() {
		return nil, badRequest("subtotal must not be negative")
	}
	c, err := repo.GetCouponByCode(ctx, s.DB, code)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("coupon not found")
		}
		return nil, err
	}
	if err := checkRedeemable(c, subtotal, s.Now()); err != nil {
		return nil, err
	}
	off := c.Discount.Apply(subtotal)
	return &CouponQuote{Code: c.Code, Subtotal: subtotal, Discount: off, Total: subtotal.Sub(off)}, nil
}
