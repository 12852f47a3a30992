// Cart and wishlist HTTP handlers. Both are scoped to the caller
// (X-User-ID) and created on first access.
//
//   - GET    /cart, DELETE /cart
//   - POST   /cart/items
//   - PUT    /cart/items/{itemId}, DELETE /cart/items/{itemId}
//   - GET    /wishlist, DELETE /wishlist
//   - POST   /wishlist/items
//   - DELETE /wishlist/items/{itemId}
//   - POST   /wishlist/items/{itemId}/move-to-cart
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-storefront-backend/internal/http/middleware"
)

// CartHandler serves the caller's cart.
type CartHandler struct {
	svc CartService
}

// WishlistHandler serves the caller's wishlist.
type WishlistHandler struct {
	svc WishlistService
}

// AddCartItemRequest adds quantity units of a product (variant) to the cart.
type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	VariantID string `json:"variant_id" example:"6f1c2a7e-0d7b-4c8e-9b1a-2f3e4d5c6b7a"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity" example:"2"`
}

// UpdateCartItemRequest sets the quantity of a cart line.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" example:"3"`
}

// AddWishlistItemRequest adds a product to the wishlist.
type AddWishlistItemRequest struct {
	ProductID string `json:"product_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// GetCart godoc
// @ID          getCart
// @Summary     Get the caller's cart
// @Tags        Cart
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cart [get]
func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.svc.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "cart fetched", cart)
}

// AddItem godoc
// @ID          addCartItem
// @Summary     Add a product to the cart
// @Description Adding an existing product/variant line increases its quantity.
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string                       false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.AddCartItemRequest  true  "Line"
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product_id required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	cart, err := h.svc.AddItem(c.Request.Context(), middleware.UserID(c), req.ProductID, req.VariantID, qty)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "item added to cart", cart)
}

// UpdateItem godoc
// @ID          updateCartItem
// @Summary     Change the quantity of a cart line
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string                          false "User ID (demo header)"  example(user123)
// @Param       itemId     path    string                          true  "Cart item ID (UUID)"    format(uuid)
// @Param       body       body    handlers.UpdateCartItemRequest  true  "Quantity"
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Item not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cart/items/{itemId} [put]
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "quantity required")
		return
	}
	cart, err := h.svc.UpdateItem(c.Request.Context(), middleware.UserID(c), c.Param("itemId"), req.Quantity)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "cart item updated", cart)
}

// RemoveItem godoc
// @ID          removeCartItem
// @Summary     Remove a cart line
// @Tags        Cart
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       itemId     path    string  true  "Cart item ID (UUID)"    format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     404  {object}  handlers.ErrorResponse "Item not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cart/items/{itemId} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	cart, err := h.svc.RemoveItem(c.Request.Context(), middleware.UserID(c), c.Param("itemId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "cart item removed", cart)
}

// Clear godoc
// @ID          clearCart
// @Summary     Empty the caller's cart
// @Tags        Cart
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	cart, err := h.svc.Clear(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "cart cleared", cart)
}

// Get godoc
// @ID          getWishlist
// @Summary     Get the caller's wishlist
// @Tags        Wishlist
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object}  handlers.Envelope{payload=domain.Wishlist}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /wishlist [get]
func (h *WishlistHandler) Get(c *gin.Context) {
	w, err := h.svc.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "wishlist fetched", w)
}

// AddItem godoc
// @ID          addWishlistItem
// @Summary     Add a product to the wishlist
// @Description Adding a product that is already listed is a no-op.
// @Tags        Wishlist
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string                           false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.AddWishlistItemRequest  true  "Product"
// @Success     200  {object}  handlers.Envelope{payload=domain.Wishlist}
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /wishlist/items [post]
func (h *WishlistHandler) AddItem(c *gin.Context) {
	var req AddWishlistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "product_id required")
		return
	}
	w, err := h.svc.AddItem(c.Request.Context(), middleware.UserID(c), req.ProductID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "item added to wishlist", w)
}

// RemoveItem godoc
// @ID          removeWishlistItem
// @Summary     Remove a wishlist entry
// @Tags        Wishlist
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"    example(user123)
// @Param       itemId     path    string  true  "Wishlist item ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=domain.Wishlist}
// @Failure     404  {object}  handlers.ErrorResponse "Item not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /wishlist/items/{itemId} [delete]
func (h *WishlistHandler) RemoveItem(c *gin.Context) {
	w, err := h.svc.RemoveItem(c.Request.Context(), middleware.UserID(c), c.Param("itemId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "wishlist item removed", w)
}

// Clear godoc
// @ID          clearWishlist
// @Summary     Empty the caller's wishlist
// @Tags        Wishlist
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object}  handlers.Envelope{payload=domain.Wishlist}
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /wishlist [delete]
func (h *WishlistHandler) Clear(c *gin.Context) {
	w, err := h.svc.Clear(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "wishlist cleared", w)
}

// MoveToCart godoc
// @ID          moveWishlistItemToCart
// @Summary     Move a wishlist entry into the cart
// @Description Adds one unit of the product to the cart and removes the wishlist entry, atomically.
// @Tags        Wishlist
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"    example(user123)
// @Param       itemId     path    string  true  "Wishlist item ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{payload=domain.Cart}
// @Failure     404  {object}  handlers.ErrorResponse "Item not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /wishlist/items/{itemId}/move-to-cart [post]
func (h *WishlistHandler) MoveToCart(c *gin.Context) {
	cart, err := h.svc.MoveToCart(c.Request.Context(), middleware.UserID(c), c.Param("itemId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "item moved to cart", cart)
}
