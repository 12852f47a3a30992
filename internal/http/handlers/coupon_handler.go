package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-storefront-backend/internal/domain"
)

// CouponHandler serves coupon CRUD and code validation.
type CouponHandler struct {
	*Entity[domain.Coupon]
	svc CouponService
}

// ValidateCouponRequest asks what a code would take off a subtotal.
type ValidateCouponRequest struct {
	Code     string          `json:"code"     binding:"required" example:"WELCOME10"`
	Subtotal decimal.Decimal `json:"subtotal" swaggertype:"string" example:"59.90"`
}

// Validate godoc
// @ID          validateCoupon
// @Summary     Validate a coupon code
// @Description Returns the discount the code gives on the subtotal. Unknown codes are 404; inactive, expired, exhausted or below-minimum codes are 400.
// @Tags        Coupons
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ValidateCouponRequest  true  "Code and subtotal"
//
// @Success     200  {object}  handlers.Envelope{payload=services.CouponQuote}
// @Failure     400  {object}  handlers.ErrorResponse "Not applicable"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown code"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /coupons/validate [post]
func (h *CouponHandler) Validate(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code and subtotal required")
		return
	}
	q, err := h.svc.Validate(c.Request.Context(), req.Code, req.Subtotal)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "coupon is valid", q)
}
