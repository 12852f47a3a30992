// Package services – cross-references
//
// This file maintains the product reference sets of campaigns and offers.
// Each set is one join table, read from both sides, so the owner's product
// list and each product's owner list are views of the same rows. The hooks
// below run inside the owner's write transaction: a crash between the
// reference update and the record write cannot leave a dangling reference.
package services

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

type xref struct {
	table repo.RefTable
	cache *cache.Gateway
}

// created links ownerID to ids. Adding an existing link is a no-op.
func (x xref) created(ctx context.Context, tx *gorm.DB, ownerID string, ids []string) (AfterCommit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := repo.AddRefs(ctx, tx, x.table, ownerID, ids); err != nil {
		return nil, err
	}
	return x.touch(ids), nil
}

// updated replaces the set of ownerID with ids by applying only the
// symmetric difference. An unchanged set touches nothing.
func (x xref) updated(ctx context.Context, tx *gorm.DB, ownerID string, ids []string) (AfterCommit, error) {
	old, err := repo.ProductIDs(ctx, tx, x.table, ownerID)
	if err != nil {
		return nil, err
	}
	added, removed := diffIDs(old, ids)
	if len(added) == 0 && len(removed) == 0 {
		return nil, nil
	}
	if err := repo.RemoveRefs(ctx, tx, x.table, ownerID, removed); err != nil {
		return nil, err
	}
	if err := repo.AddRefs(ctx, tx, x.table, ownerID, added); err != nil {
		return nil, err
	}
	return x.touch(append(added, removed...)), nil
}

// deleting pulls ownerID from every product that references it.
func (x xref) deleting(ctx context.Context, tx *gorm.DB, ownerID string) (AfterCommit, error) {
	old, err := repo.ProductIDs(ctx, tx, x.table, ownerID)
	if err != nil {
		return nil, err
	}
	if len(old) == 0 {
		return nil, nil
	}
	if err := repo.RemoveOwnerRefs(ctx, tx, x.table, ownerID); err != nil {
		return nil, err
	}
	return x.touch(old), nil
}

// touch drops the product list cache and the detail caches of the products
// whose reference set changed.
func (x xref) touch(productIDs []string) AfterCommit {
	return func(ctx context.Context) {
		invalidate(ctx, x.cache, resProducts, productIDs...)
	}
}

// diffIDs returns the IDs only in next (added) and only in prev (removed),
// each sorted.
func diffIDs(prev, next []string) (added, removed []string) {
	in := func(list []string) map[string]struct{} {
		m := make(map[string]struct{}, len(list))
		for _, v := range list {
			m[v] = struct{}{}
		}
		return m
	}
	prevSet, nextSet := in(prev), in(next)
	for id := range nextSet {
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prevSet {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// checkProductIDs rejects malformed and unknown product IDs.
func checkProductIDs(ctx context.Context, db *gorm.DB, field string, ids []string) error {
	for _, id := range ids {
		if !validID(id) {
			return badRequest("%s: %q is not a valid product id", field, id)
		}
	}
	found, err := repo.ExistingIDs[domain.Product](ctx, db, ids)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	missing, _ := diffIDs(found, ids)
	return badRequest("%s: unknown products %v", field, missing)
}
