// Package handlers exposes the REST endpoints of the storefront.
//
// Handlers are transport-thin: they parse and validate input, call the
// application services and translate results into the response envelope.
// The caller identity comes from middleware.UserID (X-User-ID header).
package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
	"github.com/tbourn/go-storefront-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ResourceService is the CRUD surface shared by every catalog entity.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ResourceService[T any] interface {
	List(ctx context.Context, q services.ListQuery) (*services.Page[T], error)
	Get(ctx context.Context, id string, fields []string) (*T, error)
	Create(ctx context.Context, rec *T) (*T, error)
	Update(ctx context.Context, id string, rec *T, fields []string) (*T, error)
	UpdateStatus(ctx context.Context, id string, active bool) (*T, error)
	Delete(ctx context.Context, id string) (string, error)
}

// ProductService adds the product sub-resources.
type ProductService interface {
	ResourceService[domain.Product]
	AddVariant(ctx context.Context, productID string, v *domain.Variant) (*domain.Variant, error)
	UpdateVariant(ctx context.Context, productID, variantID string, v *domain.Variant, fields []string) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, productID, variantID string) (string, error)
	AddReview(ctx context.Context, productID, userID string, rv *domain.Review) (*domain.Review, error)
	DeleteReview(ctx context.Context, productID, reviewID string) (string, error)
	AddFAQ(ctx context.Context, productID string, f *domain.FAQ) (*domain.FAQ, error)
	DeleteFAQ(ctx context.Context, productID, faqID string) (string, error)
}

// PromotionService adds the includeProducts read to campaigns and offers.
type PromotionService[T any] interface {
	ResourceService[T]
	GetWithProducts(ctx context.Context, id string, fields []string, include bool) (*T, error)
}

// CouponService adds code validation to coupon CRUD.
type CouponService interface {
	ResourceService[domain.Coupon]
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*services.CouponQuote, error)
}

// CartService manages the caller's cart.
type CartService interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID, variantID string, qty int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, qty int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) (*domain.Cart, error)
}

// WishlistService manages the caller's wishlist.
type WishlistService interface {
	Get(ctx context.Context, userID string) (*domain.Wishlist, error)
	AddItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.Wishlist, error)
	Clear(ctx context.Context, userID string) (*domain.Wishlist, error)
	MoveToCart(ctx context.Context, userID, itemID string) (*domain.Cart, error)
}

// OrderService places and tracks orders.
type OrderService interface {
	Create(ctx context.Context, userID, idemKey string, in services.OrderInput) (*domain.Order, bool, error)
	Get(ctx context.Context, userID string, id int64) (*domain.Order, error)
	ListForUser(ctx context.Context, userID string, q services.ListQuery) (*services.Page[domain.Order], error)
	List(ctx context.Context, q services.ListQuery) (*services.Page[domain.Order], error)
	UpdateStatus(ctx context.Context, id int64, next domain.OrderStatus) (*domain.Order, error)
}

//
// Handler wiring
//

// Deps are the services the handlers depend on. DB is optional; when set
// it enables weak ETags on list endpoints of entities without cross-entity
// references.
type Deps struct {
	DB *gorm.DB

	Products   ProductService
	Brands     ResourceService[domain.Brand]
	Categories ResourceService[domain.Category]
	Stores     ResourceService[domain.Store]
	Campaigns  PromotionService[domain.Campaign]
	Offers     PromotionService[domain.Offer]
	Coupons    CouponService
	Carts      CartService
	Wishlists  WishlistService
	Orders     OrderService
}

// Handlers groups the HTTP endpoints per resource.
type Handlers struct {
	Products   *ProductHandler
	Brands     *Entity[domain.Brand]
	Categories *Entity[domain.Category]
	Stores     *Entity[domain.Store]
	Campaigns  *Entity[domain.Campaign]
	Offers     *Entity[domain.Offer]
	Coupons    *CouponHandler
	Cart       *CartHandler
	Wishlist   *WishlistHandler
	Orders     *OrderHandler
}

type statsFunc func(ctx context.Context) (int64, *time.Time, error)

func tableStats[T any](db *gorm.DB) statsFunc {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) (int64, *time.Time, error) {
		return repo.TableStats[T](ctx, db)
	}
}

func withProducts[T any](svc PromotionService[T]) detailFunc[T] {
	if svc == nil {
		return nil
	}
	return svc.GetWithProducts
}

// New constructs the handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		Products: &ProductHandler{
			Entity: &Entity[domain.Product]{
				svc: d.Products, resource: "products", label: "product",
				defaults: func(p *domain.Product) { p.IsActive = true },
			},
			svc: d.Products,
		},
		Brands: &Entity[domain.Brand]{
			svc: d.Brands, resource: "brands", label: "brand",
			defaults: func(b *domain.Brand) { b.IsActive = true },
			stats:    tableStats[domain.Brand](d.DB),
		},
		Categories: &Entity[domain.Category]{
			svc: d.Categories, resource: "categories", label: "category",
			defaults: func(c *domain.Category) { c.IsActive = true },
			stats:    tableStats[domain.Category](d.DB),
		},
		Stores: &Entity[domain.Store]{
			svc: d.Stores, resource: "stores", label: "store",
			defaults: func(s *domain.Store) { s.IsActive = true },
			stats:    tableStats[domain.Store](d.DB),
		},
		Campaigns: &Entity[domain.Campaign]{
			svc: d.Campaigns, resource: "campaigns", label: "campaign",
			defaults: func(c *domain.Campaign) { c.IsActive = true },
			detail:   withProducts(d.Campaigns),
		},
		Offers: &Entity[domain.Offer]{
			svc: d.Offers, resource: "offers", label: "offer",
			defaults: func(o *domain.Offer) { o.IsActive = true },
			detail:   withProducts(d.Offers),
		},
		Coupons: &CouponHandler{
			Entity: &Entity[domain.Coupon]{
				svc: d.Coupons, resource: "coupons", label: "coupon",
				defaults: func(c *domain.Coupon) { c.IsActive = true },
				stats:    tableStats[domain.Coupon](d.DB),
			},
			svc: d.Coupons,
		},
		Cart:     &CartHandler{svc: d.Carts},
		Wishlist: &WishlistHandler{svc: d.Wishlists},
		Orders:   &OrderHandler{svc: d.Orders, db: d.DB},
	}
}
