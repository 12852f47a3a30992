// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for the product reference sets
// of campaigns and offers. Each set is one join table whose rows are read
// from both sides, so a campaign's product list and a product's campaign
// list can never disagree.
package repo

import (
	"context"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

// RefTable names a join table between an owner entity and products.
type RefTable struct {
	Name        string
	OwnerColumn string
	model       func() any
}

var (
	CampaignProducts = RefTable{
		Name:        "campaign_products",
		OwnerColumn: "campaign_id",
		model:       func() any { return &domain.CampaignProduct{} },
	}
	OfferProducts = RefTable{
		Name:        "offer_products",
		OwnerColumn: "offer_id",
		model:       func() any { return &domain.OfferProduct{} },
	}
)

// AddRefs links ownerID to every product in productIDs. Existing links are
// left untouched.
func AddRefs(ctx context.Context, db *gorm.DB, rt RefTable, ownerID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(productIDs))
	for _, pid := range productIDs {
		rows = append(rows, map[string]any{rt.OwnerColumn: ownerID, "product_id": pid})
	}
	return db.WithContext(ctx).
		Table(rt.Name).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
}

// RemoveRefs unlinks ownerID from the given products.
func RemoveRefs(ctx context.Context, db *gorm.DB, rt RefTable, ownerID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where(rt.OwnerColumn+" = ? AND product_id IN ?", ownerID, productIDs).
		Delete(rt.model()).Error
}

// RemoveOwnerRefs unlinks every product from ownerID.
func RemoveOwnerRefs(ctx context.Context, db *gorm.DB, rt RefTable, ownerID string) error {
	return db.WithContext(ctx).
		Where(rt.OwnerColumn+" = ?", ownerID).
		Delete(rt.model()).Error
}

// RemoveProductRefs unlinks productID from every owner and returns the
// owners that referenced it.
func RemoveProductRefs(ctx context.Context, db *gorm.DB, rt RefTable, productID string) ([]string, error) {
	owners, err := OwnerIDs(ctx, db, rt, productID)
	if err != nil || len(owners) == 0 {
		return owners, err
	}
	err = db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(rt.model()).Error
	return owners, err
}

// ProductIDs returns the products linked to ownerID, ascending.
func ProductIDs(ctx context.Context, db *gorm.DB, rt RefTable, ownerID string) ([]string, error) {
	out := make([]string, 0)
	err := db.WithContext(ctx).
		Table(rt.Name).
		Where(rt.OwnerColumn+" = ?", ownerID).
		Order("product_id").
		Pluck("product_id", &out).Error
	return out, err
}

// OwnerIDs returns the owners linked to productID, ascending.
func OwnerIDs(ctx context.Context, db *gorm.DB, rt RefTable, productID string) ([]string, error) {
	out := make([]string, 0)
	err := db.WithContext(ctx).
		Table(rt.Name).
		Where("product_id = ?", productID).
		Order(rt.OwnerColumn).
		Pluck(rt.OwnerColumn, &out).Error
	return out, err
}

type refRow struct {
	Owner   string
	Product string
}

// ProductIDsByOwner batches ProductIDs for many owners. Owners without
// links map to an empty slice.
func ProductIDsByOwner(ctx context.Context, db *gorm.DB, rt RefTable, ownerIDs []string) (map[string][]string, error) {
	return groupRefs(ctx, db, rt, rt.OwnerColumn, ownerIDs, func(r refRow) (string, string) { return r.Owner, r.Product })
}

// OwnerIDsByProduct batches OwnerIDs for many products. Products without
// links map to an empty slice.
func OwnerIDsByProduct(ctx context.Context, db *gorm.DB, rt RefTable, productIDs []string) (map[string][]string, error) {
	return groupRefs(ctx, db, rt, "product_id", productIDs, func(r refRow) (string, string) { return r.Product, r.Owner })
}

func groupRefs(ctx context.Context, db *gorm.DB, rt RefTable, column string, ids []string, split func(refRow) (string, string)) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		out[id] = []string{}
	}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []refRow
	err := db.WithContext(ctx).
		Table(rt.Name).
		Select(rt.OwnerColumn+" AS owner, product_id AS product").
		Where(column+" IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		k, v := split(r)
		out[k] = append(out[k], v)
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out, nil
}
