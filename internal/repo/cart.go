// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-user
// carts and wishlists. Read-modify-write is avoided: creation and quantity
// changes are single upsert statements, so concurrent requests for the same
// user cannot create a second cart or lose an increment.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

// Owned is implemented by per-user aggregates (Cart, Wishlist).
type Owned interface {
	domain.Cart | domain.Wishlist
}

// GetOrCreateByUser returns the user's aggregate, inserting fresh first if
// none exists. Concurrent callers converge on a single row through the
// unique index on user_id. Items are preloaded in insertion order.
func GetOrCreateByUser[T Owned](ctx context.Context, db *gorm.DB, userID string, fresh *T) (*T, error) {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(fresh).Error
	if err != nil {
		return nil, err
	}
	return GetByUser[T](ctx, db, userID)
}

// GetByUser returns the user's aggregate with items, or ErrNotFound.
func GetByUser[T Owned](ctx context.Context, db *gorm.DB, userID string) (*T, error) {
	var out T
	err := db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order(itemOrder[T]()) }).
		Where("user_id = ?", userID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func itemOrder[T Owned]() string {
	var zero T
	if _, ok := any(zero).(domain.Wishlist); ok {
		return "added_at ASC, id ASC"
	}
	return "created_at ASC, id ASC"
}

// UpsertCartItem inserts item or, when the (cart, product, variant) line
// already exists, adds item.Quantity to it in the same statement.
func UpsertCartItem(ctx context.Context, db *gorm.DB, item *domain.CartItem) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}, {Name: "variant_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(item).Error
}

// SetCartItemQuantity sets the quantity of one line. It returns ErrNotFound
// when the line does not belong to cartID.
func SetCartItemQuantity(ctx context.Context, db *gorm.DB, cartID, itemID string, qty int) error {
	res := db.WithContext(ctx).
		Model(&domain.CartItem{}).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Updates(map[string]any{"quantity": qty, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCartItem removes one line of cartID, or returns ErrNotFound.
func DeleteCartItem(ctx context.Context, db *gorm.DB, cartID, itemID string) error {
	res := db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&domain.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCart removes every line of cartID.
func ClearCart(ctx context.Context, db *gorm.DB, cartID string) error {
	return db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&domain.CartItem{}).Error
}

// AddWishlistItem saves a product once; saving it again is a no-op.
func AddWishlistItem(ctx context.Context, db *gorm.DB, item *domain.WishlistItem) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wishlist_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(item).Error
}

// GetWishlistItem returns one item of wishlistID, or ErrNotFound.
func GetWishlistItem(ctx context.Context, db *gorm.DB, wishlistID, itemID string) (*domain.WishlistItem, error) {
	var it domain.WishlistItem
	if err := db.WithContext(ctx).Where("id = ? AND wishlist_id = ?", itemID, wishlistID).First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

// DeleteWishlistItem removes one item of wishlistID, or returns ErrNotFound.
func DeleteWishlistItem(ctx context.Context, db *gorm.DB, wishlistID, itemID string) error {
	res := db.WithContext(ctx).Where("id = ? AND wishlist_id = ?", itemID, wishlistID).Delete(&domain.WishlistItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearWishlist removes every item of wishlistID.
func ClearWishlist(ctx context.Context, db *gorm.DB, wishlistID string) error {
	return db.WithContext(ctx).Where("wishlist_id = ?", wishlistID).Delete(&domain.WishlistItem{}).Error
}
