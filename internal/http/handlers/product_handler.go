// Product sub-resource handlers.
//
//   - POST   /products/{id}/variants
//   - PUT    /products/{id}/variants/{variantId}
//   - DELETE /products/{id}/variants/{variantId}
//   - POST   /products/{id}/reviews
//   - DELETE /products/{id}/reviews/{reviewId}
//   - POST   /products/{id}/faqs
//   - DELETE /products/{id}/faqs/{faqId}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/http/middleware"
)

// ProductHandler serves the product CRUD routes and its sub-resources.
type ProductHandler struct {
	*Entity[domain.Product]
	svc ProductService
}

// ReviewRequest is the body of AddReview. The author is the caller.
type ReviewRequest struct {
	Rating  int    `json:"rating"  binding:"required,min=1,max=5" example:"5"`
	Comment string `json:"comment" example:"Keeps coffee hot for hours"`
}

// AddVariant godoc
// @ID          addVariant
// @Summary     Add a variant to a product
// @Description SKUs are upper-cased and globally unique.
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       id    path  string          true  "Product ID (UUID)"  format(uuid)
// @Param       body  body  domain.Variant  true  "Variant"
//
// @Success     201  {object}  handlers.Envelope{payload=domain.Variant}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     409  {object}  handlers.ErrorResponse "SKU taken"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/variants [post]
func (h *ProductHandler) AddVariant(c *gin.Context) {
	var v domain.Variant
	if err := c.ShouldBindJSON(&v); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.svc.AddVariant(c.Request.Context(), c.Param("id"), &v)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, "variant created", out)
}

// UpdateVariant godoc
// @ID          updateVariant
// @Summary     Update a variant
// @Description Writes only the keys present in the body (sku, price, sale_price, stock, attributes).
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       id         path  string  true  "Product ID (UUID)"  format(uuid)
// @Param       variantId  path  string  true  "Variant ID (UUID)"  format(uuid)
// @Param       body       body  object  true  "Fields to update"
//
// @Success     200  {object}  handlers.Envelope{payload=domain.Variant}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     409  {object}  handlers.ErrorResponse "SKU taken"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/variants/{variantId} [put]
func (h *ProductHandler) UpdateVariant(c *gin.Context) {
	var v domain.Variant
	fields, err := bindPatch(c, &v)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.svc.UpdateVariant(c.Request.Context(), c.Param("id"), c.Param("variantId"), &v, fields)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "variant updated", out)
}

// DeleteVariant godoc
// @ID          deleteVariant
// @Summary     Delete a variant
// @Tags        Products
// @Produce     json
// @Param       id         path  string  true  "Product ID (UUID)"  format(uuid)
// @Param       variantId  path  string  true  "Variant ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=handlers.DeletedResponse}
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/variants/{variantId} [delete]
func (h *ProductHandler) DeleteVariant(c *gin.Context) {
	id, err := h.svc.DeleteVariant(c.Request.Context(), c.Param("id"), c.Param("variantId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "variant deleted", DeletedResponse{ID: id})
}

// AddReview godoc
// @ID          addReview
// @Summary     Review a product
// @Description Adds a 1–5 star review by the caller and refreshes the product's average rating.
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                  false "User ID (demo header)"  example(user123)
// @Param       id         path    string                  true  "Product ID (UUID)"      format(uuid)
// @Param       body       body    handlers.ReviewRequest  true  "Review"
//
// @Success     201  {object}  handlers.Envelope{payload=domain.Review}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/reviews [post]
func (h *ProductHandler) AddReview(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		return
	}
	rv := &domain.Review{Rating: req.Rating, Comment: req.Comment}
	out, err := h.svc.AddReview(c.Request.Context(), c.Param("id"), middleware.UserID(c), rv)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, "review created", out)
}

// DeleteReview godoc
// @ID          deleteReview
// @Summary     Delete a review
// @Tags        Products
// @Produce     json
// @Param       id        path  string  true  "Product ID (UUID)"  format(uuid)
// @Param       reviewId  path  string  true  "Review ID (UUID)"   format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=handlers.DeletedResponse}
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/reviews/{reviewId} [delete]
func (h *ProductHandler) DeleteReview(c *gin.Context) {
	id, err := h.svc.DeleteReview(c.Request.Context(), c.Param("id"), c.Param("reviewId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "review deleted", DeletedResponse{ID: id})
}

// AddFAQ godoc
// @ID          addFAQ
// @Summary     Add a FAQ entry to a product
// @Tags        Products
// @Accept      json
// @Produce     json
// @Param       id    path  string      true  "Product ID (UUID)"  format(uuid)
// @Param       body  body  domain.FAQ  true  "Question and answer"
// @Success     201  {object}  handlers.Envelope{payload=domain.FAQ}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/faqs [post]
func (h *ProductHandler) AddFAQ(c *gin.Context) {
	var f domain.FAQ
	if err := c.ShouldBindJSON(&f); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.svc.AddFAQ(c.Request.Context(), c.Param("id"), &f)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, "faq created", out)
}

// DeleteFAQ godoc
// @ID          deleteFAQ
// @Summary     Delete a FAQ entry
// @Tags        Products
// @Produce     json
// @Param       id     path  string  true  "Product ID (UUID)"  format(uuid)
// @Param       faqId  path  string  true  "FAQ ID (UUID)"      format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=handlers.DeletedResponse}
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /products/{id}/faqs/{faqId} [delete]
func (h *ProductHandler) DeleteFAQ(c *gin.Context) {
	id, err := h.svc.DeleteFAQ(c.Request.Context(), c.Param("id"), c.Param("faqId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "faq deleted", DeletedResponse{ID: id})
}
