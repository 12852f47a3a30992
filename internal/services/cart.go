// Package services – CartService and WishlistService
//
// This file implements the per-user cart and wishlist. Both are created on
// first access through an insert-or-ignore on the unique user_id index, so
// concurrent first requests converge on one row. Cart quantity changes are
// single upsert statements (quantity = quantity + n); no read-modify-write
// runs in Go.
//
// Reads are cached per user under "carts:user:<id>" / "wishlists:user:<id>"
// and invalidated after every mutation.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// maxUserIDLen matches the user_id column width.
const maxUserIDLen = 64

func checkUserID(userID string) error {
	if strings.TrimSpace(userID) == "" || len(userID) > maxUserIDLen {
		return badRequest("malformed user id")
	}
	return nil
}

func userScope(userID string) string { return "user:" + userID }

// CartService manages shopping carts.
type CartService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the per-user read cache; nil disables it.
	Cache *cache.Gateway
}

// NewCartService constructs a CartService.
func NewCartService(db *gorm.DB, gw *cache.Gateway) *CartService {
	return &CartService{DB: db, Cache: gw}
}

func cartTracer(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/CartService")
	return tr.Start(ctx, op, trace.WithAttributes(attribute.String("user.id", userID)))
}

func (s *CartService) key(userID string) string {
	return s.Cache.Key(resCarts, userScope(userID), nil)
}

func (s *CartService) invalidate(ctx context.Context, userID string) {
	s.Cache.Invalidate(ctx, s.key(userID))
}

// Get returns the user's cart, creating an empty one on first access.
func (s *CartService) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	ctx, span := cartTracer(ctx, "Get", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key(userID), 0, func(ctx context.Context) (*domain.Cart, error) {
		return s.getOrCreate(ctx, s.DB, userID)
	})
}

func (s *CartService) getOrCreate(ctx context.Context, db *gorm.DB, userID string) (*domain.Cart, error) {
	return repo.GetOrCreateByUser(ctx, db, userID, &domain.Cart{ID: uuid.NewString(), UserID: userID})
}

// existing returns the user's cart without creating it.
func (s *CartService) existing(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := repo.GetByUser[domain.Cart](ctx, s.DB, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("cart not found")
		}
		return nil, err
	}
	return c, nil
}

// AddItem adds qty units of a product (and optional variant) to the cart.
// An existing line for the same product and variant is incremented, not
// duplicated.
func (s *CartService) AddItem(ctx context.Context, userID, productID, variantID string, qty int) (*domain.Cart, error) {
	ctx, span := cartTracer(ctx, "AddItem", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	if !validID(productID) {
		return nil, badRequest("malformed product id")
	}
	if variantID != "" && !validID(variantID) {
		return nil, badRequest("malformed variant id")
	}
	if qty < 1 {
		return nil, badRequest("quantity must be at least 1")
	}
	if err := checkPurchasable(ctx, s.DB, productID, variantID); err != nil {
		return nil, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		return repo.UpsertCartItem(ctx, tx, &domain.CartItem{
			ID:        uuid.NewString(),
			CartID:    c.ID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  qty,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// checkPurchasable verifies that the product exists and, when given, that
// the variant belongs to it.
func checkPurchasable(ctx context.Context, db *gorm.DB, productID, variantID string) error {
	found, err := repo.ExistingIDs[domain.Product](ctx, db, []string{productID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return notFound("product not found")
	}
	if variantID == "" {
		return nil
	}
	if _, err := repo.GetOwned[domain.Variant](ctx, db, "product_id", productID, variantID); err != nil {
		if isNotFound(err) {
			return notFound("variant not found")
		}
		return err
	}
	return nil
}

// UpdateItem sets the quantity of one cart line.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, qty int) (*domain.Cart, error) {
	ctx, span := cartTracer(ctx, "UpdateItem", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, badRequest("quantity must be at least 1")
	}
	c, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.SetCartItemQuantity(ctx, s.DB, c.ID, itemID, qty); err != nil {
		if isNotFound(err) {
			return nil, notFound("cart item not found")
		}
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// RemoveItem deletes one cart line.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.Cart, error) {
	ctx, span := cartTracer(ctx, "RemoveItem", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	c, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.DeleteCartItem(ctx, s.DB, c.ID, itemID); err != nil {
		if isNotFound(err) {
			return nil, notFound("cart item not found")
		}
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// Clear empties the cart. Clearing an empty or missing cart succeeds.
func (s *CartService) Clear(ctx context.Context, userID string) (*domain.Cart, error) {
	ctx, span := cartTracer(ctx, "Clear", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	c, err := s.getOrCreate(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.ClearCart(ctx, s.DB, c.ID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// WishlistService manages wishlists.
type WishlistService struct {
	DB    *gorm.DB
	Cache *cache.Gateway
	// Carts receives items moved out of the wishlist.
	Carts *CartService
}

// NewWishlistService constructs a WishlistService.
func NewWishlistService(db *gorm.DB, gw *cache.Gateway, carts *CartService) *WishlistService {
	return &WishlistService{DB: db, Cache: gw, Carts: carts}
}

func wishlistTracer(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	tr := otel.Tracer("services/WishlistService")
	return tr.Start(ctx, op, trace.WithAttributes(attribute.String("user.id", userID)))
}

func (s *WishlistService) key(userID string) string {
	return s.Cache.Key(resWishlists, userScope(userID), nil)
}

func (s *WishlistService) invalidate(ctx context.Context, userID string) {
	s.Cache.Invalidate(ctx, s.key(userID))
}

func (s *WishlistService) getOrCreate(ctx context.Context, db *gorm.DB, userID string) (*domain.Wishlist, error) {
	return repo.GetOrCreateByUser(ctx, db, userID, &domain.Wishlist{ID: uuid.NewString(), UserID: userID})
}

func (s *WishlistService) existing(ctx context.Context, userID string) (*domain.Wishlist, error) {
	w, err := repo.GetByUser[domain.Wishlist](ctx, s.DB, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("wishlist not found")
		}
		return nil, err
	}
	return w, nil
}

// Get returns the user's wishlist, creating an empty one on first access.
func (s *WishlistService) Get(ctx context.Context, userID string) (*domain.Wishlist, error) {
	ctx, span := wishlistTracer(ctx, "Get", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.Cache, s.key(userID), 0, func(ctx context.Context) (*domain.Wishlist, error) {
		return s.getOrCreate(ctx, s.DB, userID)
	})
}

// AddItem saves a product. Saving it twice keeps one item.
func (s *WishlistService) AddItem(ctx context.Context, userID, productID string) (*domain.Wishlist, error) {
	ctx, span := wishlistTracer(ctx, "AddItem", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	if !validID(productID) {
		return nil, badRequest("malformed product id")
	}
	if err := checkPurchasable(ctx, s.DB, productID, ""); err != nil {
		return nil, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		return repo.AddWishlistItem(ctx, tx, &domain.WishlistItem{
			ID:         uuid.NewString(),
			WishlistID: w.ID,
			ProductID:  productID,
			AddedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// RemoveItem deletes one wishlist item.
func (s *WishlistService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.Wishlist, error) {
	ctx, span := wishlistTracer(ctx, "RemoveItem", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	w, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.DeleteWishlistItem(ctx, s.DB, w.ID, itemID); err != nil {
		if isNotFound(err) {
			return nil, notFound("wishlist item not found")
		}
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// Clear empties the wishlist. Clearing an empty or missing one succeeds.
func (s *WishlistService) Clear(ctx context.Context, userID string) (*domain.Wishlist, error) {
	ctx, span := wishlistTracer(ctx, "Clear", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	w, err := s.getOrCreate(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if err := repo.ClearWishlist(ctx, s.DB, w.ID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return s.Get(ctx, userID)
}

// MoveToCart moves one wishlist item into the cart with quantity 1 (or
// adds 1 to an existing line) and removes it from the wishlist, in one
// transaction. It returns the updated cart.
func (s *WishlistService) MoveToCart(ctx context.Context, userID, itemID string) (*domain.Cart, error) {
	ctx, span := wishlistTracer(ctx, "MoveToCart", userID)
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	w, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		it, err := repo.GetWishlistItem(ctx, tx, w.ID, itemID)
		if err != nil {
			if isNotFound(err) {
				return notFound("wishlist item not found")
			}
			return err
		}
		c, err := s.Carts.getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := repo.UpsertCartItem(ctx, tx, &domain.CartItem{
			ID:        uuid.NewString(),
			CartID:    c.ID,
			ProductID: it.ProductID,
			Quantity:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return repo.DeleteWishlistItem(ctx, tx, w.ID, it.ID)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	s.Carts.invalidate(ctx, userID)
	return s.Carts.Get(ctx, userID)
}
