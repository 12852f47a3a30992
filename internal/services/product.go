// Package services – ProductService
//
// This file implements the ProductService: the generic product resource
// plus the variant, review and FAQ sub-resources. Products carry the
// campaign and offer reference sets, hydrated from the join tables that
// the CampaignService and OfferService maintain. Deleting a product
// removes its references from both sets in the same transaction.
package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// Cache resource names shared across services.
const (
	resProducts  = "products"
	resCampaigns = "campaigns"
	resOffers    = "offers"
	resCoupons   = "coupons"
	resCarts     = "carts"
	resWishlists = "wishlists"
	resOrders    = "orders"
)

// ProductService provides product CRUD and the product sub-resources.
type ProductService struct {
	*Resource[domain.Product]
}

// NewProductService wires the product resource.
func NewProductService(db *gorm.DB, gw *cache.Gateway) *ProductService {
	s := &ProductService{}
	s.Resource = NewResource(db, gw, Definition[domain.Product]{
		Resource: resProducts,
		Label:    "product",
		Fields: func() map[string][]string {
			m := selfColumns("id", "name", "slug", "description", "brand_id", "category_id",
				"is_active", "featured", "average_rating", "review_count", "created_at", "updated_at")
			m["campaigns"] = nil
			m["offers"] = nil
			return m
		}(),
		Relations: map[string]string{
			"variants": "Variants",
			"reviews":  "Reviews",
			"faqs":     "FAQs",
		},
		ListPreload: []string{"Variants"},
		Searchable:  []string{"name", "description"},
		Filters: map[string]string{
			"is_active":   "is_active",
			"featured":    "featured",
			"brand_id":    "brand_id",
			"category_id": "category_id",
		},
		Sortable:    withTimestamps(timestampSort, "name", "average_rating", "review_count"),
		DefaultSort: "created_at",
		DefaultDesc: true,
		Updatable:   []string{"name", "slug", "description", "brand_id", "category_id", "is_active", "featured"},
		Unique: nameSlugUnique(
			func(p *domain.Product) string { return p.Name },
			func(p *domain.Product) string { return p.Slug },
		),
		ID:        func(p *domain.Product) *string { return &p.ID },
		SetActive: func(p *domain.Product, v bool) { p.IsActive = v },
		Slug:      func(p *domain.Product) (string, *string) { return p.Name, &p.Slug },
		Normalize: normalizeProduct,
		Validate:  validateProduct,
		Check:     checkProduct,
		Hydrate:   hydrateProductRefs,
		Hooks: Hooks[domain.Product]{
			Delete: s.deleting,
		},
	})
	return s
}

func normalizeProduct(p *domain.Product) {
	p.Name = strings.TrimSpace(p.Name)
	for _, ref := range []**string{&p.BrandID, &p.CategoryID} {
		if *ref != nil && strings.TrimSpace(**ref) == "" {
			*ref = nil
		}
	}
	// Ratings are derived from reviews; reference sets are owned by
	// campaigns and offers.
	p.AverageRating, p.ReviewCount = 0, 0
	p.Reviews, p.Campaigns, p.Offers = nil, nil, nil
	for i := range p.Variants {
		normalizeVariant(&p.Variants[i])
		p.Variants[i].ID = uuid.NewString()
		p.Variants[i].ProductID = p.ID
	}
	for i := range p.FAQs {
		p.FAQs[i].ID = uuid.NewString()
		p.FAQs[i].ProductID = p.ID
	}
}

func validateProduct(p *domain.Product, fields []string) error {
	if err := validateName(p.Name, fields); err != nil {
		return err
	}
	if fields != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(p.Variants))
	for i := range p.Variants {
		if err := validateVariant(&p.Variants[i], nil); err != nil {
			return err
		}
		if _, dup := seen[p.Variants[i].SKU]; dup {
			return conflict("duplicate sku %q", p.Variants[i].SKU)
		}
		seen[p.Variants[i].SKU] = struct{}{}
	}
	for _, f := range p.FAQs {
		if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" {
			return badRequest("faq question and answer are required")
		}
	}
	return nil
}

func checkProduct(ctx context.Context, db *gorm.DB, p *domain.Product, id string, fields []string) error {
	if wants(fields, "brand_id") && p.BrandID != nil {
		if err := checkRef[domain.Brand](ctx, db, "brand_id", *p.BrandID, ""); err != nil {
			return err
		}
	}
	if wants(fields, "category_id") && p.CategoryID != nil {
		if err := checkRef[domain.Category](ctx, db, "category_id", *p.CategoryID, ""); err != nil {
			return err
		}
	}
	for _, v := range p.Variants {
		if err := checkSKU(ctx, db, v.SKU, ""); err != nil {
			return err
		}
	}
	return nil
}

// hydrateProductRefs attaches the campaign and offer reference sets.
func hydrateProductRefs(ctx context.Context, db *gorm.DB, items []*domain.Product, fields []string) error {
	ids := make([]string, len(items))
	for i, p := range items {
		ids[i] = p.ID
	}
	if wants(fields, "campaigns") {
		refs, err := repo.OwnerIDsByProduct(ctx, db, repo.CampaignProducts, ids)
		if err != nil {
			return err
		}
		for _, p := range items {
			p.Campaigns = refs[p.ID]
		}
	}
	if wants(fields, "offers") {
		refs, err := repo.OwnerIDsByProduct(ctx, db, repo.OfferProducts, ids)
		if err != nil {
			return err
		}
		for _, p := range items {
			p.Offers = refs[p.ID]
		}
	}
	return nil
}

// deleting removes child rows and reference-set rows before the product
// row goes. Campaign and offer caches that listed the product are dropped
// after commit, as are all cart and wishlist caches.
func (s *ProductService) deleting(ctx context.Context, tx *gorm.DB, id string) (AfterCommit, error) {
	if err := repo.DeleteProductChildren(ctx, tx, id); err != nil {
		return nil, err
	}
	campaigns, err := repo.RemoveProductRefs(ctx, tx, repo.CampaignProducts, id)
	if err != nil {
		return nil, err
	}
	offers, err := repo.RemoveProductRefs(ctx, tx, repo.OfferProducts, id)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if len(campaigns) > 0 {
			invalidate(ctx, s.Cache, resCampaigns, campaigns...)
		}
		if len(offers) > 0 {
			invalidate(ctx, s.Cache, resOffers, offers...)
		}
		s.Cache.InvalidatePrefix(ctx, s.Cache.Prefix(resCarts), s.Cache.Prefix(resWishlists))
	}, nil
}

func (s *ProductService) tracer(ctx context.Context, op, productID string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/ProductService")
	return tr.Start(ctx, op, trace.WithAttributes(attribute.String("product.id", productID)))
}

// requireProduct maps a malformed or unknown product id to NotFound.
func (s *ProductService) requireProduct(ctx context.Context, db *gorm.DB, id string) error {
	if !validID(id) {
		return notFound("product not found")
	}
	found, err := repo.ExistingIDs[domain.Product](ctx, db, []string{id})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return notFound("product not found")
	}
	return nil
}

// ----- Variants -----

func normalizeVariant(v *domain.Variant) {
	v.SKU = strings.ToUpper(strings.TrimSpace(v.SKU))
}

func validateVariant(v *domain.Variant, fields []string) error {
	if wants(fields, "sku") && v.SKU == "" {
		return badRequest("variant sku is required")
	}
	if wants(fields, "price") && !v.Price.IsPositive() {
		return badRequest("variant price must be greater than zero")
	}
	if wants(fields, "sale_price") && v.SalePrice.Valid {
		if v.SalePrice.Decimal.IsNegative() {
			return badRequest("variant sale_price must not be negative")
		}
		if wants(fields, "price") && v.SalePrice.Decimal.GreaterThan(v.Price) {
			return badRequest("variant sale_price cannot exceed price")
		}
	}
	if wants(fields, "stock") && v.Stock < 0 {
		return badRequest("variant stock must not be negative")
	}
	return nil
}

func checkSKU(ctx context.Context, db *gorm.DB, sku, excludeID string) error {
	taken, err := repo.Exists[domain.Variant](ctx, db, "sku", sku, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return conflict("variant with sku %q already exists", sku)
	}
	return nil
}

var variantUpdatable = map[string]string{
	"sku":        "sku",
	"price":      "price",
	"sale_price": "sale_price",
	"stock":      "stock",
	"attributes": "attributes",
}

// AddVariant creates a variant under productID.
func (s *ProductService) AddVariant(ctx context.Context, productID string, v *domain.Variant) (*domain.Variant, error) {
	ctx, span := s.tracer(ctx, "AddVariant", productID)
	defer span.End()

	if err := s.requireProduct(ctx, s.DB, productID); err != nil {
		return nil, err
	}
	normalizeVariant(v)
	if err := validateVariant(v, nil); err != nil {
		return nil, err
	}
	if err := checkSKU(ctx, s.DB, v.SKU, ""); err != nil {
		return nil, err
	}
	v.ID = uuid.NewString()
	v.ProductID = productID
	v.Reserved, v.Sold = 0, 0
	if err := repo.Create(ctx, s.DB, v); err != nil {
		return nil, s.writeErr(err)
	}
	s.Invalidate(ctx, productID)
	return v, nil
}

// UpdateVariant writes the named fields of v to the variant.
func (s *ProductService) UpdateVariant(ctx context.Context, productID, variantID string, v *domain.Variant, fields []string) (*domain.Variant, error) {
	ctx, span := s.tracer(ctx, "UpdateVariant", productID)
	defer span.End()

	if err := s.requireProduct(ctx, s.DB, productID); err != nil {
		return nil, err
	}
	fields = normalizeFields(fields)
	if len(fields) == 0 {
		return nil, badRequest("no fields to update")
	}
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := variantUpdatable[f]
		if !ok {
			return nil, badRequest("field %q cannot be updated", f)
		}
		cols = append(cols, col)
	}
	if !validID(variantID) {
		return nil, notFound("variant not found")
	}
	cur, err := repo.GetOwned[domain.Variant](ctx, s.DB, "product_id", productID, variantID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("variant not found")
		}
		return nil, err
	}

	normalizeVariant(v)
	if !contains(fields, "price") {
		v.Price = cur.Price
	}
	if err := validateVariant(v, append(fields, "price")); err != nil {
		return nil, err
	}
	if contains(fields, "sku") {
		if err := checkSKU(ctx, s.DB, v.SKU, variantID); err != nil {
			return nil, err
		}
	}

	if err := repo.Update(ctx, s.DB, variantID, v, append(cols, "updated_at")); err != nil {
		return nil, s.writeErr(err)
	}
	s.Invalidate(ctx, productID)
	return repo.Get[domain.Variant](ctx, s.DB, variantID, nil)
}

// DeleteVariant removes a variant and returns its id.
func (s *ProductService) DeleteVariant(ctx context.Context, productID, variantID string) (string, error) {
	return s.deleteChild(ctx, "DeleteVariant", productID, variantID, "variant", func(tx *gorm.DB) error {
		return repo.DeleteOwned[domain.Variant](ctx, tx, "product_id", productID, variantID)
	})
}

// ----- Reviews -----

// AddReview records a 1–5 rating by userID and refreshes the product's
// average rating and review count.
func (s *ProductService) AddReview(ctx context.Context, productID, userID string, rv *domain.Review) (*domain.Review, error) {
	ctx, span := s.tracer(ctx, "AddReview", productID)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, badRequest("user id is required")
	}
	if rv.Rating < 1 || rv.Rating > 5 {
		return nil, badRequest("rating must be between 1 and 5")
	}
	if err := s.requireProduct(ctx, s.DB, productID); err != nil {
		return nil, err
	}
	rv.ID = uuid.NewString()
	rv.ProductID = productID
	rv.UserID = userID
	rv.Comment = strings.TrimSpace(rv.Comment)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.Create(ctx, tx, rv); err != nil {
			return err
		}
		return repo.RefreshRating(ctx, tx, productID)
	})
	if err != nil {
		return nil, s.writeErr(err)
	}
	s.Invalidate(ctx, productID)
	return rv, nil
}

// DeleteReview removes a review and refreshes the product's rating.
func (s *ProductService) DeleteReview(ctx context.Context, productID, reviewID string) (string, error) {
	return s.deleteChild(ctx, "DeleteReview", productID, reviewID, "review", func(tx *gorm.DB) error {
		if err := repo.DeleteOwned[domain.Review](ctx, tx, "product_id", productID, reviewID); err != nil {
			return err
		}
		return repo.RefreshRating(ctx, tx, productID)
	})
}

// ----- FAQs -----

// AddFAQ attaches a question and answer to a product.
func (s *ProductService) AddFAQ(ctx context.Context, productID string, f *domain.FAQ) (*domain.FAQ, error) {
	ctx, span := s.tracer(ctx, "AddFAQ", productID)
	defer span.End()

	f.Question = strings.TrimSpace(f.Question)
	f.Answer = strings.TrimSpace(f.Answer)
	if f.Question == "" || f.Answer == "" {
		return nil, badRequest("faq question and answer are required")
	}
	if err := s.requireProduct(ctx, s.DB, productID); err != nil {
		return nil, err
	}
	f.ID = uuid.NewString()
	f.ProductID = productID
	if err := repo.Create(ctx, s.DB, f); err != nil {
		return nil, err
	}
	s.Invalidate(ctx, productID)
	return f, nil
}

// DeleteFAQ removes a FAQ entry.
func (s *ProductService) DeleteFAQ(ctx context.Context, productID, faqID string) (string, error) {
	return s.deleteChild(ctx, "DeleteFAQ", productID, faqID, "faq", func(tx *gorm.DB) error {
		return repo.DeleteOwned[domain.FAQ](ctx, tx, "product_id", productID, faqID)
	})
}

func (s *ProductService) deleteChild(ctx context.Context, op, productID, childID, label string, del func(tx *gorm.DB) error) (string, error) {
	ctx, span := s.tracer(ctx, op, productID)
	defer span.End()

	if err := s.requireProduct(ctx, s.DB, productID); err != nil {
		return "", err
	}
	if !validID(childID) {
		return "", notFound("%s not found", label)
	}
	if err := s.DB.WithContext(ctx).Transaction(del); err != nil {
		if isNotFound(err) {
			return "", notFound("%s not found", label)
		}
		return "", err
	}
	s.Invalidate(ctx, productID)
	return childID, nil
}
