// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for orders and the
// conditional counter updates that order placement relies on. Callers run
// them inside a single transaction.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

var (
	// ErrInsufficientStock is returned when a variant cannot cover a quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCouponExhausted is returned when a coupon has no redemptions left.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
)

// NextSequence increments the named counter and returns the new value. The
// first call for a name returns 1. Run it inside the transaction that uses
// the value so numbers are never handed out twice.
func NextSequence(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	tx := db.WithContext(ctx)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Counter{Name: name}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&domain.Counter{}).Where("name = ?", name).Update("value", gorm.Expr("value + 1")).Error; err != nil {
		return 0, err
	}
	var c domain.Counter
	if err := tx.Where("name = ?", name).First(&c).Error; err != nil {
		return 0, err
	}
	return c.Value, nil
}

// DecrementStock moves qty units of a variant from stock to sold, provided
// stock covers it. Otherwise it returns ErrInsufficientStock.
func DecrementStock(ctx context.Context, db *gorm.DB, variantID string, qty int) error {
	res := db.WithContext(ctx).
		Model(&domain.Variant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Updates(map[string]any{
			"stock": gorm.Expr("stock - ?", qty),
			"sold":  gorm.Expr("sold + ?", qty),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// RestoreStock reverses DecrementStock for a cancelled or returned line.
func RestoreStock(ctx context.Context, db *gorm.DB, variantID string, qty int) error {
	return db.WithContext(ctx).
		Model(&domain.Variant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"stock": gorm.Expr("stock + ?", qty),
			"sold":  gorm.Expr("CASE WHEN sold >= ? THEN sold - ? ELSE 0 END", qty, qty),
		}).Error
}

// RedeemCoupon consumes one use of a coupon, or returns ErrCouponExhausted
// when its usage limit is reached.
func RedeemCoupon(ctx context.Context, db *gorm.DB, couponID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Coupon{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", couponID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCouponExhausted
	}
	return nil
}

// GetCouponByCode fetches a coupon by its normalized code.
func GetCouponByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	var c domain.Coupon
	if err := db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateOrder inserts an order and its items.
func CreateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Create(o).Error
}

// GetOrder fetches an order with its items. When userID is non-empty the
// order must belong to that user. Missing orders yield ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id int64, userID string) (*domain.Order, error) {
	q := db.WithContext(ctx).Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).Where("id = ?", id)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var o domain.Order
	if err := q.First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// SetOrderStatus moves an order from one status to another. It returns
// ErrNotFound if the order is missing or no longer in status from.
func SetOrderStatus(ctx context.Context, db *gorm.DB, id int64, from, to domain.OrderStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
