// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the child
// rows of a product (variants, reviews, FAQs) and for the cleanup that
// product deletion needs.
package repo

import (
	"context"
	"math"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

// GetOwned fetches the row of T with the given id, provided its
// ownerColumn equals ownerID. Otherwise it returns ErrNotFound.
func GetOwned[T any](ctx context.Context, db *gorm.DB, ownerColumn, ownerID, id string) (*T, error) {
	var out T
	err := db.WithContext(ctx).
		Where("id = ? AND "+ownerColumn+" = ?", id, ownerID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOwned removes the row of T with the given id under ownerID, or
// returns ErrNotFound.
func DeleteOwned[T any](ctx context.Context, db *gorm.DB, ownerColumn, ownerID, id string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND "+ownerColumn+" = ?", id, ownerID).
		Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// VariantsOf returns the variants of the given products, keyed by product.
func VariantsOf(ctx context.Context, db *gorm.DB, productIDs []string) (map[string][]domain.Variant, error) {
	out := make(map[string][]domain.Variant, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []domain.Variant
	err := db.WithContext(ctx).
		Where("product_id IN ?", productIDs).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, v := range rows {
		out[v.ProductID] = append(out[v.ProductID], v)
	}
	return out, nil
}

// DeleteProductChildren removes every variant, review and FAQ of a product
// together with the cart and wishlist lines that point at it. Foreign keys
// are not relied upon because SQLite enforces them per connection.
func DeleteProductChildren(ctx context.Context, db *gorm.DB, productID string) error {
	tx := db.WithContext(ctx)
	for _, model := range []any{
		&domain.Variant{},
		&domain.Review{},
		&domain.FAQ{},
		&domain.CartItem{},
		&domain.WishlistItem{},
	} {
		if err := tx.Where("product_id = ?", productID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

// RefreshRating recomputes a product's average rating (two decimals) and
// review count from its reviews.
func RefreshRating(ctx context.Context, db *gorm.DB, productID string) error {
	var agg struct {
		Avg float64
		N   int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS n").
		Where("product_id = ?", productID).
		Scan(&agg).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"average_rating": math.Round(agg.Avg*100) / 100,
			"review_count":   agg.N,
		}).Error
}
