// Package services – campaigns and offers
//
// Campaigns and offers share one shape: a named discount with a validity
// window and a product reference set. This file builds both resources from
// one definition and adds the includeProducts read.
package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// promoAccess exposes the shared fields of a promotion type.
type promoAccess[T any] struct {
	id       func(*T) *string
	name     func(*T) *string
	slug     func(*T) *string
	discount func(*T) domain.Discount
	window   func(*T) domain.Window
	active   func(*T) *bool
	refs     func(*T) *[]string
	products func(*T) *[]domain.Product
}

// PromotionService is the resource of a promotion type plus the reads that
// expand its reference set.
type PromotionService[T any] struct {
	*Resource[T]
	table repo.RefTable
	acc   promoAccess[T]
}

// CampaignService manages campaigns (refs under applies_to.productsIds).
type CampaignService = PromotionService[domain.Campaign]

// OfferService manages offers (refs under applicable_products).
type OfferService = PromotionService[domain.Offer]

// NewCampaignService wires the campaign resource. listTTL applies to list
// pages.
func NewCampaignService(db *gorm.DB, gw *cache.Gateway, listTTL time.Duration) *CampaignService {
	return newPromotionService(db, gw, resCampaigns, "campaign", "applies_to", repo.CampaignProducts, listTTL,
		promoAccess[domain.Campaign]{
			id:       func(c *domain.Campaign) *string { return &c.ID },
			name:     func(c *domain.Campaign) *string { return &c.Name },
			slug:     func(c *domain.Campaign) *string { return &c.Slug },
			discount: func(c *domain.Campaign) domain.Discount { return c.Discount },
			window:   func(c *domain.Campaign) domain.Window { return c.Window },
			active:   func(c *domain.Campaign) *bool { return &c.IsActive },
			refs:     func(c *domain.Campaign) *[]string { return &c.AppliesTo.ProductIDs },
			products: func(c *domain.Campaign) *[]domain.Product { return &c.Products },
		})
}

// NewOfferService wires the offer resource. listTTL applies to list pages.
func NewOfferService(db *gorm.DB, gw *cache.Gateway, listTTL time.Duration) *OfferService {
	return newPromotionService(db, gw, resOffers, "offer", "applicable_products", repo.OfferProducts, listTTL,
		promoAccess[domain.Offer]{
			id:       func(o *domain.Offer) *string { return &o.ID },
			name:     func(o *domain.Offer) *string { return &o.Name },
			slug:     func(o *domain.Offer) *string { return &o.Slug },
			discount: func(o *domain.Offer) domain.Discount { return o.Discount },
			window:   func(o *domain.Offer) domain.Window { return o.Window },
			active:   func(o *domain.Offer) *bool { return &o.IsActive },
			refs:     func(o *domain.Offer) *[]string { return &o.ApplicableProducts },
			products: func(o *domain.Offer) *[]domain.Product { return &o.Products },
		})
}

func newPromotionService[T any](db *gorm.DB, gw *cache.Gateway, resource, label, refField string, table repo.RefTable, listTTL time.Duration, acc promoAccess[T]) *PromotionService[T] {
	x := xref{table: table, cache: gw}

	fields := selfColumns("id", "name", "slug", "description", "is_active", "starts_at", "ends_at",
		"created_at", "updated_at")
	fields["discount"] = []string{"discount_type", "discount_value"}
	fields[refField] = nil

	def := Definition[T]{
		Resource:   resource,
		Label:      label,
		Fields:     fields,
		Searchable: []string{"name", "description"},
		Filters: map[string]string{
			"is_active":     "is_active",
			"discount_type": "discount_type",
		},
		Sortable:    withTimestamps(timestampSort, "name", "starts_at", "ends_at"),
		DefaultSort: "created_at",
		DefaultDesc: true,
		Updatable:   []string{"name", "slug", "description", "discount", "starts_at", "ends_at", "is_active", refField},
		Unique: nameSlugUnique(
			func(t *T) string { return *acc.name(t) },
			func(t *T) string { return *acc.slug(t) },
		),
		ListTTL:   listTTL,
		ID:        acc.id,
		SetActive: func(t *T, v bool) { *acc.active(t) = v },
		Slug:      func(t *T) (string, *string) { return *acc.name(t), acc.slug(t) },
		Normalize: func(t *T) {
			*acc.name(t) = strings.TrimSpace(*acc.name(t))
			*acc.refs(t) = dedupe(*acc.refs(t))
			*acc.products(t) = nil
		},
		Validate: func(t *T, f []string) error {
			if err := validateName(*acc.name(t), f); err != nil {
				return err
			}
			if wants(f, "discount") {
				if err := validateDiscount(acc.discount(t)); err != nil {
					return err
				}
			}
			if wants(f, "starts_at") || wants(f, "ends_at") {
				return validateWindow(acc.window(t))
			}
			return nil
		},
		Check: func(ctx context.Context, db *gorm.DB, t *T, id string, f []string) error {
			if err := checkWindowUpdate(ctx, db, id, f, acc.window(t), acc.window); err != nil {
				return err
			}
			if !wants(f, refField) {
				return nil
			}
			return checkProductIDs(ctx, db, refField, *acc.refs(t))
		},
		Hydrate: func(ctx context.Context, db *gorm.DB, items []*T, f []string) error {
			if !wants(f, refField) {
				return nil
			}
			ids := make([]string, len(items))
			for i, t := range items {
				ids[i] = *acc.id(t)
			}
			refs, err := repo.ProductIDsByOwner(ctx, db, table, ids)
			if err != nil {
				return err
			}
			for _, t := range items {
				*acc.refs(t) = refs[*acc.id(t)]
			}
			return nil
		},
		Hooks: Hooks[T]{
			Create: func(ctx context.Context, tx *gorm.DB, t *T) (AfterCommit, error) {
				return x.created(ctx, tx, *acc.id(t), *acc.refs(t))
			},
			Update: func(ctx context.Context, tx *gorm.DB, id string, t *T, f []string) (AfterCommit, error) {
				if !contains(f, refField) {
					return nil, nil
				}
				return x.updated(ctx, tx, id, *acc.refs(t))
			},
			Delete: func(ctx context.Context, tx *gorm.DB, id string) (AfterCommit, error) {
				return x.deleting(ctx, tx, id)
			},
		},
	}
	return &PromotionService[T]{Resource: NewResource(db, gw, def), table: table, acc: acc}
}

// summaryColumns are the product columns attached by includeProducts.
var summaryColumns = []string{"id", "name", "slug", "brand_id", "category_id", "is_active", "featured",
	"average_rating", "review_count"}

// GetWithProducts is Get, optionally expanded with summaries of the
// referenced products. The expansion is read from the store on every call.
func (s *PromotionService[T]) GetWithProducts(ctx context.Context, id string, fields []string, include bool) (*T, error) {
	rec, err := s.Get(ctx, id, fields)
	if err != nil || !include {
		return rec, err
	}

	ids, err := repo.ProductIDs(ctx, s.DB, s.table, id)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0)
	if len(ids) > 0 {
		products, _, err = repo.List[domain.Product](ctx, s.DB, repo.ListParams{
			Scope:      func(tx *gorm.DB) *gorm.DB { return tx.Where("id IN ?", ids) },
			SortColumn: "name",
			Columns:    summaryColumns,
		})
		if err != nil {
			return nil, err
		}
	}

	// Copy so the shared cached value is never mutated.
	out := *rec
	*s.acc.products(&out) = products
	return &out, nil
}
