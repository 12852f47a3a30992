// Order HTTP handlers.
//
//   - POST  /orders               (place, Idempotency-Key aware)
//   - GET   /orders               (caller's orders, paginated, ETag support)
//   - GET   /orders/{id}          (caller's order)
//   - PATCH /orders/{id}/status   (lifecycle transition)
//   - GET   /admin/orders         (every order)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and an order was already
// placed with it by the same user, that order is returned with 200 and
// `Idempotency-Replayed: true` instead of placing a new one.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/http/middleware"
	"github.com/tbourn/go-storefront-backend/internal/repo"
	"github.com/tbourn/go-storefront-backend/internal/services"
)

// OrderHandler serves the order routes.
type OrderHandler struct {
	svc OrderService
	db  *gorm.DB
}

// OrderStatusRequest is the body of UpdateStatus.
type OrderStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required" example:"processing"`
}

// orderID parses the numeric order id. Malformed ids are reported as
// missing orders.
func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")
		return 0, false
	}
	return id, true
}

// Create godoc
// @ID          createOrder
// @Summary     Place an order
// @Description Snapshots prices, decrements stock and redeems the coupon in one transaction. With from_cart the cart lines are ordered and the cart is emptied. Supports idempotency via the Idempotency-Key header (same key → same order).
// @Tags        Orders
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string               false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string               false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    services.OrderInput  true  "Checkout"
//
// @Success     201  {object}  handlers.Envelope{payload=domain.Order}
// @Success     200  {object}  handlers.Envelope{payload=domain.Order}  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true when an earlier order was returned"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Product not found"
// @Failure     429  {object}  handlers.ErrorResponse "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var in services.OrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	o, replayed, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), key, in)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, "order already placed", o)
		return
	}
	ok(c, http.StatusCreated, "order created", o)
}

// ListMine godoc
// @ID          listMyOrders
// @Summary     List the caller's orders (paginated)
// @Description Newest first by default. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Orders
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(10)
// @Param       status         query   string  false "Status filter"   Enums(pending, processing, shipped, delivered, cancelled, returned)
// @Param       sortBy         query   string  false "Sort field"      Enums(created_at, updated_at, total, status)
// @Param       sortOrder      query   string  false "Sort order"      Enums(asc, desc)
//
// @Success     200  {object}  handlers.Envelope
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /orders [get]
func (h *OrderHandler) ListMine(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	q, err := listQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.OrdersStats(ctx, h.db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"orders:%s:%d:%d:%016x"`, uid, count, ts, xxhash.Sum64String(c.Request.URL.RawQuery))
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, err := h.svc.ListForUser(ctx, uid, q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "orders fetched", page)
}

// ListAll godoc
// @ID          listAllOrders
// @Summary     List every order (admin)
// @Tags        Orders
// @Produce     json
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       limit      query  int     false "Items per page"  minimum(1) maximum(100) default(10)
// @Param       user_id    query  string  false "Only this user's orders"
// @Param       status     query  string  false "Status filter"
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /admin/orders [get]
func (h *OrderHandler) ListAll(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	page, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "orders fetched", page)
}

// Get godoc
// @ID          getOrder
// @Summary     Get one of the caller's orders
// @Tags        Orders
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Order number"           minimum(1)
// @Success     200  {object}  handlers.Envelope{payload=domain.Order}
// @Failure     404  {object}  handlers.ErrorResponse "Order not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, valid := orderID(c)
	if !valid {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "order fetched", o)
}

// UpdateStatus godoc
// @ID          updateOrderStatus
// @Summary     Move an order along its lifecycle
// @Description pending → processing|cancelled, processing → shipped|cancelled, shipped → delivered|returned, delivered → returned. Cancelling or returning restores stock.
// @Tags        Orders
// @Accept      json
// @Produce     json
// @Param       id    path  int                          true  "Order number"  minimum(1)
// @Param       body  body  handlers.OrderStatusRequest  true  "Next status"
// @Success     200  {object}  handlers.Envelope{payload=domain.Order}
// @Failure     400  {object}  handlers.ErrorResponse "Illegal transition"
// @Failure     404  {object}  handlers.ErrorResponse "Order not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, valid := orderID(c)
	if !valid {
		return
	}
	var req OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	o, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, "order status updated", o)
}
