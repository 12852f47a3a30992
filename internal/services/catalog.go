// Package services – catalog entities
//
// This file defines the plain catalog entities (brands, categories,
// stores). They need nothing beyond the generic Resource apart from a few
// validation rules.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// selfColumns maps each JSON field to the column of the same name.
func selfColumns(names ...string) map[string][]string {
	m := make(map[string][]string, len(names))
	for _, n := range names {
		m[n] = []string{n}
	}
	return m
}

// nameSlugUnique is the uniqueness rule shared by named entities.
func nameSlugUnique[T any](name func(*T) string, slug func(*T) string) []Unique[T] {
	return []Unique[T]{
		{Field: "name", Column: "name", Value: name},
		{Field: "slug", Column: "slug", Value: slug},
	}
}

var timestampSort = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func withTimestamps(m map[string]string, extra ...string) map[string]string {
	out := make(map[string]string, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for _, e := range extra {
		out[e] = e
	}
	return out
}

// NewBrandService returns the brand resource.
func NewBrandService(db *gorm.DB, gw *cache.Gateway) *Resource[domain.Brand] {
	return NewResource(db, gw, Definition[domain.Brand]{
		Resource: "brands",
		Label:    "brand",
		Fields: selfColumns("id", "name", "slug", "description", "logo_url", "website",
			"is_active", "featured", "created_at", "updated_at"),
		Searchable:  []string{"name", "description"},
		Filters:     map[string]string{"is_active": "is_active", "featured": "featured"},
		Sortable:    withTimestamps(timestampSort, "name"),
		DefaultSort: "name",
		Updatable:   []string{"name", "slug", "description", "logo_url", "website", "is_active", "featured"},
		Unique: nameSlugUnique(
			func(b *domain.Brand) string { return b.Name },
			func(b *domain.Brand) string { return b.Slug },
		),
		ID:        func(b *domain.Brand) *string { return &b.ID },
		SetActive: func(b *domain.Brand, v bool) { b.IsActive = v },
		Slug:      func(b *domain.Brand) (string, *string) { return b.Name, &b.Slug },
		Normalize: func(b *domain.Brand) { b.Name = strings.TrimSpace(b.Name) },
		Validate: func(b *domain.Brand, fields []string) error {
			return validateName(b.Name, fields)
		},
	})
}

// NewCategoryService returns the category resource. A category may hang
// under an existing parent, never under itself.
func NewCategoryService(db *gorm.DB, gw *cache.Gateway) *Resource[domain.Category] {
	return NewResource(db, gw, Definition[domain.Category]{
		Resource: "categories",
		Label:    "category",
		Fields: selfColumns("id", "name", "slug", "description", "parent_id", "image_url",
			"is_active", "featured", "created_at", "updated_at"),
		Searchable: []string{"name", "description"},
		Filters: map[string]string{
			"is_active": "is_active",
			"featured":  "featured",
			"parent_id": "parent_id",
		},
		Sortable:    withTimestamps(timestampSort, "name"),
		DefaultSort: "name",
		Updatable:   []string{"name", "slug", "description", "parent_id", "image_url", "is_active", "featured"},
		Unique: nameSlugUnique(
			func(c *domain.Category) string { return c.Name },
			func(c *domain.Category) string { return c.Slug },
		),
		ID:        func(c *domain.Category) *string { return &c.ID },
		SetActive: func(c *domain.Category, v bool) { c.IsActive = v },
		Slug:      func(c *domain.Category) (string, *string) { return c.Name, &c.Slug },
		Normalize: func(c *domain.Category) {
			c.Name = strings.TrimSpace(c.Name)
			if c.ParentID != nil && strings.TrimSpace(*c.ParentID) == "" {
				c.ParentID = nil
			}
		},
		Validate: func(c *domain.Category, fields []string) error {
			return validateName(c.Name, fields)
		},
		Check: func(ctx context.Context, db *gorm.DB, c *domain.Category, id string, fields []string) error {
			if !wants(fields, "parent_id") || c.ParentID == nil {
				return nil
			}
			return checkRef[domain.Category](ctx, db, "parent_id", *c.ParentID, id)
		},
	})
}

// NewStoreService returns the physical store resource.
func NewStoreService(db *gorm.DB, gw *cache.Gateway) *Resource[domain.Store] {
	return NewResource(db, gw, Definition[domain.Store]{
		Resource: "stores",
		Label:    "store",
		Fields: selfColumns("id", "name", "slug", "description", "address", "city", "country",
			"phone", "email", "is_active", "created_at", "updated_at"),
		Searchable: []string{"name", "description", "address", "city"},
		Filters: map[string]string{
			"is_active": "is_active",
			"city":      "city",
			"country":   "country",
		},
		Sortable:    withTimestamps(timestampSort, "name", "city", "country"),
		DefaultSort: "name",
		Updatable: []string{"name", "slug", "description", "address", "city", "country",
			"phone", "email", "is_active"},
		Unique: nameSlugUnique(
			func(s *domain.Store) string { return s.Name },
			func(s *domain.Store) string { return s.Slug },
		),
		ID:        func(s *domain.Store) *string { return &s.ID },
		SetActive: func(s *domain.Store, v bool) { s.IsActive = v },
		Slug:      func(s *domain.Store) (string, *string) { return s.Name, &s.Slug },
		Normalize: func(s *domain.Store) {
			s.Name = strings.TrimSpace(s.Name)
			s.Email = strings.ToLower(strings.TrimSpace(s.Email))
		},
		Validate: func(s *domain.Store, fields []string) error {
			if err := validateName(s.Name, fields); err != nil {
				return err
			}
			return validateEmail(s.Email, fields)
		},
	})
}

// checkRef verifies that ref names an existing row of T other than selfID.
func checkRef[T any](ctx context.Context, db *gorm.DB, field, ref, selfID string) error {
	if !validID(ref) {
		return badRequest("%s is not a valid id", field)
	}
	if ref == selfID {
		return badRequest("%s cannot reference the record itself", field)
	}
	found, err := repo.ExistingIDs[T](ctx, db, []string{ref})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return badRequest("%s %q does not exist", field, ref)
	}
	return nil
}
