// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides generic repository functions shared by
// every catalog entity.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Column names passed in ListParams and to Update/Exists are trusted: the
// service layer resolves them from a per-entity whitelist.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListParams describes a filtered, sorted and paginated query.
type ListParams struct {
	// Search is matched case-insensitively as a substring of any of
	// SearchColumns (OR).
	Search        string
	SearchColumns []string
	// Exact holds column = value conditions (AND).
	Exact map[string]any
	// Scope applies extra conditions, e.g. ownership.
	Scope func(*gorm.DB) *gorm.DB

	SortColumn string
	Desc       bool
	Offset     int
	Limit      int

	// Columns restricts the selected columns; empty selects all.
	Columns []string
	Preload []string
}

func (p ListParams) filter(tx *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(p.Search); s != "" && len(p.SearchColumns) > 0 {
		like := "%" + strings.ToLower(s) + "%"
		parts := make([]string, len(p.SearchColumns))
		args := make([]any, len(p.SearchColumns))
		for i, col := range p.SearchColumns {
			parts[i] = "LOWER(" + col + ") LIKE ?"
			args[i] = like
		}
		tx = tx.Where("("+strings.Join(parts, " OR ")+")", args...)
	}
	for col, v := range p.Exact {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: col}, Value: v})
	}
	if p.Scope != nil {
		tx = p.Scope(tx)
	}
	return tx
}

// List returns one page of T matching p together with the total number of
// matching rows. A page past the end yields an empty slice and the real
// total.
func List[T any](ctx context.Context, db *gorm.DB, p ListParams) ([]T, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(new(T)).Scopes(p.filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	out := make([]T, 0)
	if total == 0 || int64(p.Offset) >= total {
		return out, total, nil
	}

	q := db.WithContext(ctx).Scopes(p.filter)
	if p.SortColumn != "" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: p.SortColumn}, Desc: p.Desc})
	}
	// Stable pagination across equal sort keys.
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	if len(p.Columns) > 0 {
		q = q.Select(p.Columns)
	}
	for _, rel := range p.Preload {
		q = q.Preload(rel)
	}
	if p.Limit > 0 {
		q = q.Offset(p.Offset).Limit(p.Limit)
	}
	err := q.Find(&out).Error
	return out, total, err
}

// Get fetches a single record by primary key. If the record does not exist,
// it returns ErrNotFound.
func Get[T any](ctx context.Context, db *gorm.DB, id any, columns []string, preload ...string) (*T, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if len(columns) > 0 {
		q = q.Select(columns)
	}
	for _, rel := range preload {
		q = q.Preload(rel)
	}
	var out T
	if err := q.First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Create inserts rec, including any associations GORM saves by default.
func Create[T any](ctx context.Context, db *gorm.DB, rec *T) error {
	return db.WithContext(ctx).Create(rec).Error
}

// Update writes the named columns of rec to the row with the given id. Zero
// values are written too. If no row matches, it returns ErrNotFound.
func Update[T any](ctx context.Context, db *gorm.DB, id any, rec *T, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(new(T)).
		Where("id = ?", id).
		Select(columns).
		Omit(clause.Associations).
		Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with the given id. If no row matches, it returns
// ErrNotFound.
func Delete[T any](ctx context.Context, db *gorm.DB, id any) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether a row of T has column = value, ignoring the row
// whose id is excludeID (when non-empty).
func Exists[T any](ctx context.Context, db *gorm.DB, column string, value any, excludeID string) (bool, error) {
	q := db.WithContext(ctx).Model(new(T)).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExistingIDs returns the subset of ids that exist as rows of T, in
// ascending order.
func ExistingIDs[T any](ctx context.Context, db *gorm.DB, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Model(new(T)).Where("id IN ?", ids).Order("id").Pluck("id", &out).Error
	return out, err
}
