// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

// OrdersStats returns aggregate metadata for a user's orders: the total number
// of rows and the maximum UpdatedAt timestamp among those rows. An empty
// userID covers every order.
//
// It executes two lightweight queries against the orders table. When there
// are no orders, the returned count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total orders in scope
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func OrdersStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&domain.Order{})
		if userID != "" {
			tx = tx.Where("user_id = ?", userID)
		}
		return tx
	}
	return tableStats(ctx, db, scope)
}

// TableStats returns the row count and latest UpdatedAt of T's table.
func TableStats[T any](ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	return tableStats(ctx, db, func(tx *gorm.DB) *gorm.DB { return tx.Model(new(T)) })
}

func tableStats(ctx context.Context, db *gorm.DB, scope func(*gorm.DB) *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	// Count
	if err = db.WithContext(ctx).Scopes(scope).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Scopes(scope).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
