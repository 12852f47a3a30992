// Package services – Resource
//
// This file implements Resource, the generic CRUD service instantiated once
// per catalog entity. A Definition describes the entity (field whitelist,
// searchable and filterable columns, sort keys, unique fields, hooks) and
// Resource turns it into list/get/create/update/delete operations with
// read-through caching and post-commit invalidation.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// are named after the operation and carry the resource name.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// Unique names a JSON field whose column must be unique across the table.
type Unique[T any] struct {
	Field  string
	Column string
	Value  func(*T) string
}

// AfterCommit runs once the write transaction has committed.
type AfterCommit func(context.Context)

// Hooks run inside the write transaction of the matching operation. A
// returned AfterCommit (may be nil) runs after the commit, next to the
// resource's own cache invalidation.
type Hooks[T any] struct {
	Create func(ctx context.Context, tx *gorm.DB, rec *T) (AfterCommit, error)
	Update func(ctx context.Context, tx *gorm.DB, id string, rec *T, fields []string) (AfterCommit, error)
	Delete func(ctx context.Context, tx *gorm.DB, id string) (AfterCommit, error)
}

// Definition describes one entity to Resource.
type Definition[T any] struct {
	// Resource is the cache and tracing name, e.g. "products".
	Resource string
	// Label is the singular used in error messages, e.g. "product".
	Label string

	// Fields maps each selectable JSON field to its columns. Fields that
	// are hydrated rather than selected map to no columns.
	Fields map[string][]string
	// Relations maps JSON fields to preloadable associations.
	Relations map[string]string
	// ListPreload lists associations preloaded by List when no projection
	// is requested. Get preloads every relation.
	ListPreload []string

	Searchable  []string
	Filters     map[string]string // query key -> column
	Sortable    map[string]string // sortBy value -> column
	DefaultSort string
	DefaultDesc bool

	// Updatable lists the JSON fields Update accepts.
	Updatable []string
	Unique    []Unique[T]

	// ListTTL and DetailTTL fall back to the gateway default when zero.
	ListTTL   time.Duration
	DetailTTL time.Duration

	ID        func(*T) *string
	SetActive func(*T, bool)
	// Slug, when set, exposes the name and slug fields for derivation.
	Slug func(*T) (name string, slug *string)

	// Normalize mutates a record before validation (trim, upper-case, IDs).
	Normalize func(*T)
	// Validate checks a record. fields is nil on create and holds the
	// updated JSON fields on update.
	Validate func(rec *T, fields []string) error
	// Check runs store-backed validation inside the write transaction,
	// before the write. id is "" on create.
	Check func(ctx context.Context, db *gorm.DB, rec *T, id string, fields []string) error
	// Hydrate fills fields that are not plain columns.
	Hydrate func(ctx context.Context, db *gorm.DB, items []*T, fields []string) error

	Hooks Hooks[T]
}

// Resource is the generic entity service.
type Resource[T any] struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the read-through cache; nil disables caching.
	Cache *cache.Gateway
	Def   Definition[T]
}

// NewResource constructs a Resource for def.
func NewResource[T any](db *gorm.DB, gw *cache.Gateway, def Definition[T]) *Resource[T] {
	return &Resource[T]{DB: db, Cache: gw, Def: def}
}

func (r *Resource[T]) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/" + r.Def.Resource)
	attrs = append(attrs, attribute.String("resource", r.Def.Resource))
	return tr.Start(ctx, op, trace.WithAttributes(attrs...))
}

// List returns one page of records matching q. Results are cached under a
// key derived from the normalized query.
func (r *Resource[T]) List(ctx context.Context, q ListQuery) (*Page[T], error) {
	ctx, span := r.span(ctx, "List",
		attribute.Int("page", q.Page),
		attribute.Int("limit", q.Limit),
	)
	defer span.End()

	q, params, err := r.listParams(q)
	if err != nil {
		return nil, err
	}

	key := r.Cache.Key(r.Def.Resource, "list", q)
	return cache.Fetch(ctx, r.Cache, key, r.Def.ListTTL, func(ctx context.Context) (*Page[T], error) {
		items, total, err := repo.List[T](ctx, r.DB, params)
		if err != nil {
			return nil, err
		}
		if err := r.hydrate(ctx, r.DB, pointers(items), q.Fields); err != nil {
			return nil, err
		}
		return &Page[T]{Items: items, Pagination: NewPagination(total, q.Page, q.Limit)}, nil
	})
}

func (r *Resource[T]) listParams(q ListQuery) (ListQuery, repo.ListParams, error) {
	q = q.paginate()

	fields, err := r.checkFields(q.Fields)
	if err != nil {
		return q, repo.ListParams{}, err
	}
	q.Fields = fields

	sortCol, desc := r.Def.DefaultSort, r.Def.DefaultDesc
	if q.SortBy != "" {
		col, ok := r.Def.Sortable[q.SortBy]
		if !ok {
			return q, repo.ListParams{}, badRequest("cannot sort by %q", q.SortBy)
		}
		sortCol, desc = col, false
	}
	switch q.SortOrder {
	case "":
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		return q, repo.ListParams{}, badRequest("sortOrder must be asc or desc")
	}

	var exact map[string]any
	for k, v := range q.Filters {
		col, ok := r.Def.Filters[k]
		if !ok {
			return q, repo.ListParams{}, badRequest("unknown filter %q", k)
		}
		if exact == nil {
			exact = make(map[string]any, len(q.Filters))
		}
		exact[col] = v
	}

	return q, repo.ListParams{
		Search:        q.Search,
		SearchColumns: r.Def.Searchable,
		Exact:         exact,
		SortColumn:    sortCol,
		Desc:          desc,
		Offset:        q.offset(),
		Limit:         q.Limit,
		Columns:       r.columns(fields),
		Preload:       r.preloads(fields, r.Def.ListPreload),
	}, nil
}

// Get returns one record. Malformed and unknown IDs both yield NotFound.
func (r *Resource[T]) Get(ctx context.Context, id string, fields []string) (*T, error) {
	ctx, span := r.span(ctx, "Get", attribute.String("id", id))
	defer span.End()

	if !validID(id) {
		return nil, r.notFound()
	}
	fields, err := r.checkFields(fields)
	if err != nil {
		return nil, err
	}

	key := r.Cache.Key(r.Def.Resource, "id:"+id, fields)
	return cache.Fetch(ctx, r.Cache, key, r.Def.DetailTTL, func(ctx context.Context) (*T, error) {
		return r.load(ctx, r.DB, id, fields)
	})
}

func (r *Resource[T]) load(ctx context.Context, db *gorm.DB, id string, fields []string) (*T, error) {
	rec, err := repo.Get[T](ctx, db, id, r.columns(fields), r.preloads(fields, r.relations())...)
	if err != nil {
		if isNotFound(err) {
			return nil, r.notFound()
		}
		return nil, err
	}
	if err := r.hydrate(ctx, db, []*T{rec}, fields); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create validates and inserts rec, assigning an ID and deriving the slug
// when absent. Uniqueness is checked before any write. The created record
// is returned as Get would return it.
func (r *Resource[T]) Create(ctx context.Context, rec *T) (*T, error) {
	ctx, span := r.span(ctx, "Create")
	defer span.End()

	id := r.Def.ID(rec)
	switch {
	case *id == "":
		*id = uuid.NewString()
	case !validID(*id):
		return nil, badRequest("malformed %s id", r.Def.Label)
	}
	if r.Def.Normalize != nil {
		r.Def.Normalize(rec)
	}
	if r.Def.Validate != nil {
		if err := r.Def.Validate(rec, nil); err != nil {
			return nil, err
		}
	}
	if err := r.deriveSlug(rec, nil); err != nil {
		return nil, err
	}
	if err := r.checkUnique(ctx, rec, "", nil); err != nil {
		return nil, err
	}
	var after AfterCommit
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.Def.Check != nil {
			if err := r.Def.Check(ctx, tx, rec, "", nil); err != nil {
				return err
			}
		}
		if err := repo.Create(ctx, tx, rec); err != nil {
			return err
		}
		if r.Def.Hooks.Create == nil {
			return nil
		}
		var err error
		after, err = r.Def.Hooks.Create(ctx, tx, rec)
		return err
	})
	if err != nil {
		return nil, r.writeErr(err)
	}

	r.Cache.InvalidatePrefix(ctx, r.listPrefix())
	if after != nil {
		after(ctx)
	}
	return r.Get(ctx, *id, nil)
}

// Update writes the named JSON fields of rec to the record with the given
// id. The slug is re-derived when the name changes without an explicit
// slug. Uniqueness is re-checked excluding the record itself.
func (r *Resource[T]) Update(ctx context.Context, id string, rec *T, fields []string) (*T, error) {
	ctx, span := r.span(ctx, "Update", attribute.String("id", id))
	defer span.End()

	if !validID(id) {
		return nil, r.notFound()
	}
	fields = normalizeFields(fields)
	if len(fields) == 0 {
		return nil, badRequest("no fields to update")
	}
	for _, f := range fields {
		if !contains(r.Def.Updatable, f) {
			return nil, badRequest("field %q cannot be updated", f)
		}
	}
	if _, err := repo.Get[T](ctx, r.DB, id, []string{"id"}); err != nil {
		if isNotFound(err) {
			return nil, r.notFound()
		}
		return nil, err
	}
	*r.Def.ID(rec) = id

	if r.Def.Normalize != nil {
		r.Def.Normalize(rec)
	}
	if r.Def.Validate != nil {
		if err := r.Def.Validate(rec, fields); err != nil {
			return nil, err
		}
	}
	if r.Def.Slug != nil && contains(fields, "name") && !contains(fields, "slug") {
		fields = append(fields, "slug")
	}
	if err := r.deriveSlug(rec, fields); err != nil {
		return nil, err
	}
	if err := r.checkUnique(ctx, rec, id, fields); err != nil {
		return nil, err
	}
	cols := r.updateColumns(fields)
	var after AfterCommit
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.Def.Check != nil {
			if err := r.Def.Check(ctx, tx, rec, id, fields); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, tx, id, rec, cols); err != nil {
			return err
		}
		if r.Def.Hooks.Update == nil {
			return nil
		}
		var err error
		after, err = r.Def.Hooks.Update(ctx, tx, id, rec, fields)
		return err
	})
	if err != nil {
		return nil, r.writeErr(err)
	}

	r.Invalidate(ctx, id)
	if after != nil {
		after(ctx)
	}
	return r.Get(ctx, id, nil)
}

// UpdateStatus sets is_active through Update.
func (r *Resource[T]) UpdateStatus(ctx context.Context, id string, active bool) (*T, error) {
	rec := new(T)
	r.Def.SetActive(rec, active)
	return r.Update(ctx, id, rec, []string{"is_active"})
}

// Delete removes the record and returns its id. Delete hooks run first in
// the same transaction.
func (r *Resource[T]) Delete(ctx context.Context, id string) (string, error) {
	ctx, span := r.span(ctx, "Delete", attribute.String("id", id))
	defer span.End()

	if !validID(id) {
		return "", r.notFound()
	}

	var after AfterCommit
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.Def.Hooks.Delete != nil {
			var err error
			if after, err = r.Def.Hooks.Delete(ctx, tx, id); err != nil {
				return err
			}
		}
		return repo.Delete[T](ctx, tx, id)
	})
	if err != nil {
		return "", r.writeErr(err)
	}

	r.Invalidate(ctx, id)
	if after != nil {
		after(ctx)
	}
	return id, nil
}

// Invalidate drops the list cache and the detail caches of ids.
func (r *Resource[T]) Invalidate(ctx context.Context, ids ...string) {
	invalidate(ctx, r.Cache, r.Def.Resource, ids...)
}

// invalidate drops the list cache of resource and the detail caches of ids.
// Services use it to reach resources they do not own.
func invalidate(ctx context.Context, gw *cache.Gateway, resource string, ids ...string) {
	prefixes := make([]string, 0, len(ids)+1)
	prefixes = append(prefixes, gw.Prefix(resource, "list"))
	for _, id := range ids {
		prefixes = append(prefixes, gw.Prefix(resource, "id", id))
	}
	gw.InvalidatePrefix(ctx, prefixes...)
}

func (r *Resource[T]) listPrefix() string {
	return r.Cache.Prefix(r.Def.Resource, "list")
}

func (r *Resource[T]) notFound() error {
	return notFound("%s not found", r.Def.Label)
}

// checkFields validates and normalizes a projection.
func (r *Resource[T]) checkFields(fields []string) ([]string, error) {
	fields = normalizeFields(fields)
	for _, f := range fields {
		if _, ok := r.Def.Fields[f]; ok {
			continue
		}
		if _, ok := r.Def.Relations[f]; ok {
			continue
		}
		return nil, badRequest("unknown field %q", f)
	}
	return fields, nil
}

// columns maps a projection to its columns. id is always selected.
func (r *Resource[T]) columns(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	cols := []string{"id"}
	for _, f := range fields {
		for _, c := range r.Def.Fields[f] {
			if !contains(cols, c) {
				cols = append(cols, c)
			}
		}
	}
	return cols
}

func (r *Resource[T]) updateColumns(fields []string) []string {
	var cols []string
	for _, f := range fields {
		cols = append(cols, r.Def.Fields[f]...)
	}
	if len(cols) == 0 {
		return nil
	}
	return append(cols, "updated_at")
}

func (r *Resource[T]) preloads(fields []string, dflt []string) []string {
	if len(fields) == 0 {
		return dflt
	}
	var out []string
	for _, f := range fields {
		if rel, ok := r.Def.Relations[f]; ok {
			out = append(out, rel)
		}
	}
	return out
}

func (r *Resource[T]) relations() []string {
	out := make([]string, 0, len(r.Def.Relations))
	for _, rel := range r.Def.Relations {
		out = append(out, rel)
	}
	return out
}

func (r *Resource[T]) hydrate(ctx context.Context, db *gorm.DB, items []*T, fields []string) error {
	if r.Def.Hydrate == nil || len(items) == 0 {
		return nil
	}
	return r.Def.Hydrate(ctx, db, items, fields)
}

// deriveSlug fills a blank slug from the name and normalizes an explicit
// one. On update it only acts when "slug" is among fields.
func (r *Resource[T]) deriveSlug(rec *T, fields []string) error {
	if r.Def.Slug == nil || (fields != nil && !contains(fields, "slug")) {
		return nil
	}
	name, slug := r.Def.Slug(rec)
	src := *slug
	if src == "" {
		src = name
	}
	*slug = Slugify(src)
	if *slug == "" {
		return badRequest("%s slug cannot be derived from %q", r.Def.Label, src)
	}
	return nil
}

func (r *Resource[T]) checkUnique(ctx context.Context, rec *T, excludeID string, fields []string) error {
	for _, u := range r.Def.Unique {
		if fields != nil && !contains(fields, u.Field) {
			continue
		}
		v := u.Value(rec)
		if v == "" {
			continue
		}
		taken, err := repo.Exists[T](ctx, r.DB, u.Column, v, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return conflict("%s with %s %q already exists", r.Def.Label, u.Field, v)
		}
	}
	return nil
}

// writeErr classifies errors surfacing from a write transaction. Unique
// violations that slipped past checkUnique (concurrent writers) become
// Conflict.
func (r *Resource[T]) writeErr(err error) error {
	var se *Error
	switch {
	case errors.As(err, &se):
		return err
	case isDuplicate(err):
		if col := uniqueColumn(err); col != "" {
			return conflict("%s with this %s already exists", r.Def.Label, col)
		}
		return conflict("%s already exists", r.Def.Label)
	case isNotFound(err):
		return r.notFound()
	}
	return err
}

// validID reports whether s is a canonical UUID.
func validID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func pointers[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}
