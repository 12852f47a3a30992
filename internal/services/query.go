package services

import (
	"sort"
	"strings"
)

const (
	// DefaultPageSize is used when a query carries no positive limit.
	DefaultPageSize = 10
	// MaxPageSize caps the limit of a single page.
	MaxPageSize = 100
)

// ListQuery is the transport-independent form of a list request. Filters
// are keyed by query parameter name and must already be typed (bool flags
// parsed, IDs as strings).
type ListQuery struct {
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
	Search    string         `json:"search,omitempty"`
	SortBy    string         `json:"sortBy,omitempty"`
	SortOrder string         `json:"sortOrder,omitempty"`
	Fields    []string       `json:"fields,omitempty"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Items      int64 `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

func (q ListQuery) offset() int { return (q.Page - 1) * q.Limit }

// paginate applies page/limit defaults and bounds.
func (q ListQuery) paginate() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	q.SortOrder = strings.ToLower(strings.TrimSpace(q.SortOrder))
	return q
}

// NewPagination computes totalPages = ceil(total/limit).
func NewPagination(total int64, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Items: total, Page: page, Limit: limit, TotalPages: pages}
}

// normalizeFields trims, dedupes and sorts a projection list so equivalent
// requests share one cache entry.
func normalizeFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// wants reports whether a projection includes field; an empty projection
// includes everything.
func wants(fields []string, field string) bool {
	return len(fields) == 0 || contains(fields, field)
}

// dedupe trims, drops blanks and removes duplicates keeping first-seen order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
