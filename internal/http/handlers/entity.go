// Catalog entity HTTP handlers.
//
// Entity[T] serves the CRUD routes shared by products, brands, categories,
// stores, campaigns, offers and coupons:
//   - GET    /{resource}              (list, filter/sort/paginate/project)
//   - POST   /{resource}              (create)
//   - GET    /{resource}/{id}         (detail, projection)
//   - PUT    /{resource}/{id}         (partial update of the keys sent)
//   - PATCH  /{resource}/{id}/status  (activate/deactivate)
//   - DELETE /{resource}/{id}
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

type detailFunc[T any] func(ctx context.Context, id string, fields []string, include bool) (*T, error)

// Entity serves the generic CRUD routes of one resource.
type Entity[T any] struct {
	svc      ResourceService[T]
	resource string
	label    string

	// defaults pre-fills a record before the create body is bound.
	defaults func(*T)
	// stats enables weak ETags on List.
	stats statsFunc
	// detail replaces Get when the entity supports includeProducts.
	detail detailFunc[T]
}

// StatusRequest is the body of the status endpoints.
type StatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required" example:"false"`
}

// DeletedResponse is the payload of delete endpoints.
type DeletedResponse struct {
	ID string `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// List godoc
// @Summary     List resources (paginated)
// @Description Returns a page of records. Unknown filters, sort fields or projection fields are rejected. Brands, categories, stores and coupons support a weak ETag via If-None-Match.
// @Tags        Catalog
// @Produce     json
//
// @Param       fields           query   string  false "Comma-separated projection"  example(name,slug)
// @Param       page             query   int     false "Page number"     minimum(1) default(1)
// @Param       limit            query   int     false "Items per page"  minimum(1) maximum(100) default(10)
// @Param       sortBy           query   string  false "Sort field"      example(name)
// @Param       sortOrder        query   string  false "Sort order"      Enums(asc, desc)
// @Param       search           query   string  false "Case-insensitive substring search"
// @Param       is_active        query   string  false "Active flag"     Enums(true, false)
// @Param       featured         query   string  false "Featured flag"   Enums(true, false)
// @Param       If-None-Match    header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.Envelope
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products [get]
// @Router      /brands [get]
// @Router      /categories [get]
// @Router      /stores [get]
// @Router      /campaigns [get]
// @Router      /offers [get]
// @Router      /coupons [get]
func (e *Entity[T]) List(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := listQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// ETag pre-check (best effort).
	if e.stats != nil {
		count, maxTS, err := e.stats(ctx)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"%s:%d:%d:%016x"`, e.resource, count, ts, xxhash.Sum64String(c.Request.URL.RawQuery))
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, err := e.svc.List(ctx, q)
	if err != nil {
		failErr(c, err)
		return
	}
	out, err := projectPage(page, q.Fields)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e.resource+" fetched", out)
}

// Get godoc
// @Summary     Get a resource
// @Description Returns one record. Malformed and unknown IDs are reported as 404. Campaigns and offers accept includeProducts=true to attach product summaries.
// @Tags        Catalog
// @Produce     json
//
// @Param       id               path    string  true  "Record ID (UUID)"  format(uuid)
// @Param       fields           query   string  false "Comma-separated projection"
// @Param       includeProducts  query   string  false "Attach referenced products (campaigns, offers)"  Enums(true, false)
//
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id} [get]
// @Router      /brands/{id} [get]
// @Router      /categories/{id} [get]
// @Router      /stores/{id} [get]
// @Router      /campaigns/{id} [get]
// @Router      /offers/{id} [get]
// @Router      /coupons/{id} [get]
func (e *Entity[T]) Get(c *gin.Context) {
	ctx := c.Request.Context()
	fields := queryFields(c)
	include, _, err := queryFlag(c, "includeProducts")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	var rec *T
	if e.detail != nil {
		rec, err = e.detail(ctx, c.Param("id"), fields, include)
	} else {
		rec, err = e.svc.Get(ctx, c.Param("id"), fields)
	}
	if err != nil {
		failErr(c, err)
		return
	}

	var extra []string
	if include && e.detail != nil {
		extra = []string{"products"}
	}
	out, err := project(rec, fields, extra...)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e.label+" fetched", out)
}

// Create godoc
// @Summary     Create a resource
// @Description Creates a record. is_active defaults to true; the slug is derived from the name when omitted. Name, slug, SKU and coupon code conflicts return 409.
// @Tags        Catalog
// @Accept      json
// @Produce     json
//
// @Param       body  body  object  true  "Record"
//
// @Success     201  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse "Conflict"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products [post]
// @Router      /brands [post]
// @Router      /categories [post]
// @Router      /stores [post]
// @Router      /campaigns [post]
// @Router      /offers [post]
// @Router      /coupons [post]
func (e *Entity[T]) Create(c *gin.Context) {
	rec := new(T)
	if e.defaults != nil {
		e.defaults(rec)
	}
	if err := c.ShouldBindJSON(rec); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := e.svc.Create(c.Request.Context(), rec)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, e.label+" created", out)
}

// Update godoc
// @Summary     Update a resource
// @Description Writes only the keys present in the body. Keys that are not updatable return 400.
// @Tags        Catalog
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Record ID (UUID)"  format(uuid)
// @Param       body  body  object  true  "Fields to update"
//
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     409  {object}  handlers.ErrorResponse "Conflict"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id} [put]
// @Router      /brands/{id} [put]
// @Router      /categories/{id} [put]
// @Router      /stores/{id} [put]
// @Router      /campaigns/{id} [put]
// @Router      /offers/{id} [put]
// @Router      /coupons/{id} [put]
func (e *Entity[T]) Update(c *gin.Context) {
	rec := new(T)
	fields, err := bindPatch(c, rec)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := e.svc.Update(c.Request.Context(), c.Param("id"), rec, fields)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e.label+" updated", out)
}

// UpdateStatus godoc
// @Summary     Activate or deactivate a resource
// @Tags        Catalog
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Record ID (UUID)"  format(uuid)
// @Param       body  body  handlers.StatusRequest    true  "New status"
//
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/status [patch]
// @Router      /brands/{id}/status [patch]
// @Router      /categories/{id}/status [patch]
// @Router      /stores/{id}/status [patch]
// @Router      /campaigns/{id}/status [patch]
// @Router      /offers/{id}/status [patch]
// @Router      /coupons/{id}/status [patch]
func (e *Entity[T]) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_active (boolean) required")
		return
	}

	out, err := e.svc.UpdateStatus(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e.label+" status updated", out)
}

// Delete godoc
// @Summary     Delete a resource
// @Description Deletes a record. Deleting a product also removes it from campaigns, offers, carts and wishlists.
// @Tags        Catalog
// @Produce     json
//
// @Param       id  path  string  true  "Record ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.Envelope{payload=handlers.DeletedResponse}
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id} [delete]
// @Router      /brands/{id} [delete]
// @Router      /categories/{id} [delete]
// @Router      /stores/{id} [delete]
// @Router      /campaigns/{id} [delete]
// @Router      /offers/{id} [delete]
// @Router      /coupons/{id} [delete]
func (e *Entity[T]) Delete(c *gin.Context) {
	id, err := e.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, e.label+" deleted", DeletedResponse{ID: id})
}
