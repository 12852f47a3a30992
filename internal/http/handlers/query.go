// Query and body parsing shared by the entity handlers.
//
// List endpoints accept:
//   - fields            comma-separated projection
//   - page, limit       1-based page, page size (default 10, max 100)
//   - sortBy, sortOrder sort field and asc|desc
//   - search            case-insensitive substring match
//   - is_active, featured, includeProducts   "true"|"false" only
//
// Every other query parameter is passed to the service as an exact-match
// filter; the service rejects filters it does not know.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-storefront-backend/internal/services"
	"github.com/tbourn/go-storefront-backend/internal/utils"
)

// Query parameters with a fixed meaning; they are never filters.
var reservedParams = map[string]struct{}{
	"fields":          {},
	"page":            {},
	"limit":           {},
	"sortBy":          {},
	"sortOrder":       {},
	"search":          {},
	"includeProducts": {},
}

// Filters that are parsed into booleans at the boundary.
var flagParams = map[string]struct{}{
	"is_active": {},
	"featured":  {},
}

// queryFields returns the requested projection, or nil for all fields.
func queryFields(c *gin.Context) []string {
	return utils.SplitCSV(c.Query("fields"))
}

// queryFlag parses an optional boolean query parameter.
func queryFlag(c *gin.Context, name string) (val, present bool, err error) {
	raw, present := c.GetQuery(name)
	if !present {
		return false, false, nil
	}
	v, err := utils.ParseFlag(raw)
	if err != nil {
		return false, true, fmt.Errorf("%s %w", name, err)
	}
	return v, true, nil
}

// listQuery builds a services.ListQuery from the request query string.
func listQuery(c *gin.Context) (services.ListQuery, error) {
	q := services.ListQuery{
		Page:      utils.AtoiDefault(c.Query("page"), 1),
		Limit:     utils.AtoiDefault(c.Query("limit"), services.DefaultPageSize),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Fields:    queryFields(c),
	}
	for name, vals := range c.Request.URL.Query() {
		if _, skip := reservedParams[name]; skip || len(vals) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]any)
		}
		if _, isFlag := flagParams[name]; isFlag {
			v, err := utils.ParseFlag(vals[0])
			if err != nil {
				return q, fmt.Errorf("%s %w", name, err)
			}
			q.Filters[name] = v
			continue
		}
		q.Filters[name] = vals[0]
	}
	return q, nil
}

// bindPatch decodes a partial-update body into dst and returns the JSON
// keys present in it; those keys are the fields to update.
func bindPatch(c *gin.Context, dst any) ([]string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(raw))
	for k := range raw {
		fields = append(fields, k)
	}
	return fields, nil
}

// project narrows v to the requested JSON fields (plus id). With no
// projection v is returned unchanged.
func project(v any, fields []string, extra ...string) (any, error) {
	if len(fields) == 0 || v == nil {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(fields)+len(extra)+1)
	keep["id"] = struct{}{}
	for _, f := range fields {
		keep[f] = struct{}{}
	}
	for _, f := range extra {
		keep[f] = struct{}{}
	}
	for k := range m {
		if _, ok := keep[k]; !ok {
			delete(m, k)
		}
	}
	return m, nil
}

// projectPage applies project to every item of a page.
func projectPage[T any](p *services.Page[T], fields []string) (any, error) {
	if len(fields) == 0 {
		return p, nil
	}
	items := make([]any, 0, len(p.Items))
	for i := range p.Items {
		v, err := project(&p.Items[i], fields)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return gin.H{"items": items, "pagination": p.Pagination}, nil
}
