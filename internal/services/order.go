// Package services – OrderService
//
// This file implements order placement and the order lifecycle. Placing an
// order is one transaction: the next order number is drawn from the
// "orders" counter, line prices are snapshotted from the variants, stock
// is decremented with a guarded UPDATE, an optional coupon is redeemed and,
// in from-cart mode, the cart is emptied. Any failure rolls all of it back.
//
// Status changes follow domain.OrderStatus transitions; cancelling or
// returning an order puts its stock back.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/domain"
	"github.com/tbourn/go-storefront-backend/internal/repo"
)

// Payment methods accepted at checkout. Payment itself is not processed.
const (
	PaymentCard           = "card"
	PaymentPaypal         = "paypal"
	PaymentBankTransfer   = "bank_transfer"
	PaymentCashOnDelivery = "cash_on_delivery"
)

// IdempotencyScope scopes order-creation idempotency records.
const IdempotencyScope = "orders"

const orderSequence = "orders"

// OrderLine is one requested line of a new order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// OrderInput is the checkout request. With FromCart the lines are taken
// from the user's cart and Items must be empty.
type OrderInput struct {
	Items           []OrderLine    `json:"items"`
	FromCart        bool           `json:"from_cart"`
	ShippingAddress domain.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	CouponCode      string         `json:"coupon_code,omitempty"`
}

func (in OrderInput) validate() error {
	a := in.ShippingAddress
	if err := validation.ValidateStruct(&a,
		validation.Field(&a.FullName, validation.Required, validation.RuneLength(1, 255)),
		validation.Field(&a.Line1, validation.Required, validation.RuneLength(1, 255)),
		validation.Field(&a.City, validation.Required, validation.RuneLength(1, 128)),
		validation.Field(&a.PostalCode, validation.Required, validation.RuneLength(1, 32)),
		validation.Field(&a.Country, validation.Required, validation.RuneLength(1, 128)),
	); err != nil {
		return invalid("shipping_address", err)
	}
	if err := validation.Validate(in.PaymentMethod,
		validation.Required,
		validation.In(PaymentCard, PaymentPaypal, PaymentBankTransfer, PaymentCashOnDelivery),
	); err != nil {
		return invalid("payment_method", err)
	}
	switch {
	case in.FromCart && len(in.Items) > 0:
		return badRequest("items must be empty when ordering from the cart")
	case !in.FromCart && len(in.Items) == 0:
		return badRequest("an order needs at least one item")
	}
	for _, l := range in.Items {
		if !validID(l.ProductID) {
			return badRequest("malformed product id %q", l.ProductID)
		}
		if l.VariantID != "" && !validID(l.VariantID) {
			return badRequest("malformed variant id %q", l.VariantID)
		}
		if l.Quantity < 1 {
			return badRequest("quantity must be at least 1")
		}
	}
	return nil
}

// OrderService places and tracks orders.
type OrderService struct {
	// DB is the GORM handle used for persistence.
	DB    *gorm.DB
	Cache *cache.Gateway

	// IdempotencyTTL bounds how long an Idempotency-Key replays its order.
	IdempotencyTTL time.Duration
	// Now is the clock used for coupon windows and idempotency expiry.
	Now func() time.Time
}

// NewOrderService constructs an OrderService with a 24h idempotency window.
func NewOrderService(db *gorm.DB, gw *cache.Gateway) *OrderService {
	return &OrderService{DB: db, Cache: gw, IdempotencyTTL: 24 * time.Hour, Now: time.Now}
}

func orderTracer(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/OrderService")
	return tr.Start(ctx, op, trace.WithAttributes(attrs...))
}

// Create places an order for userID. When idemKey is non-empty and an
// order was already placed with it, that order is returned with
// replayed=true and nothing is written.
func (s *OrderService) Create(ctx context.Context, userID, idemKey string, in OrderInput) (order *domain.Order, replayed bool, err error) {
	ctx, span := orderTracer(ctx, "Create", attribute.String("user.id", userID))
	defer span.End()

	if err := checkUserID(userID); err != nil {
		return nil, false, err
	}
	if prev, err := s.replay(ctx, userID, idemKey); err != nil || prev != nil {
		return prev, prev != nil, err
	}
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	var touched []string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, err := s.lines(ctx, tx, userID, in)
		if err != nil {
			return err
		}
		o := &domain.Order{
			UserID:          userID,
			Status:          domain.OrderPending,
			ShippingAddress: in.ShippingAddress,
			PaymentMethod:   in.PaymentMethod,
			Subtotal:        decimal.Zero,
			Discount:        decimal.Zero,
		}
		for _, l := range lines {
			item, err := s.snapshot(ctx, tx, l)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, *item)
			o.Subtotal = o.Subtotal.Add(item.LineTotal)
			touched = append(touched, item.ProductID)
		}
		if code := strings.ToUpper(strings.TrimSpace(in.CouponCode)); code != "" {
			off, err := s.redeem(ctx, tx, code, o.Subtotal)
			if err != nil {
				return err
			}
			o.CouponCode, o.Discount = code, off
		}
		o.Total = o.Subtotal.Sub(o.Discount)

		if o.ID, err = repo.NextSequence(ctx, tx, orderSequence); err != nil {
			return err
		}
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
		}
		if err := repo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}
		if in.FromCart {
			if err := clearUserCart(ctx, tx, userID); err != nil {
				return err
			}
		}
		if idemKey != "" {
			_, err := repo.CreateIdempotency(ctx, tx, userID, IdempotencyScope, idemKey,
				strconv.FormatInt(o.ID, 10), 201, s.IdempotencyTTL)
			if err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won the race.
		prev, rerr := s.replay(ctx, userID, idemKey)
		return prev, prev != nil, rerr
	}
	if err != nil {
		return nil, false, err
	}

	s.invalidateUser(ctx, userID)
	invalidate(ctx, s.Cache, resProducts, touched...)
	if order.CouponCode != "" {
		s.Cache.InvalidatePrefix(ctx, s.Cache.Prefix(resCoupons))
	}
	if in.FromCart {
		s.Cache.Invalidate(ctx, s.Cache.Key(resCarts, userScope(userID), nil))
	}
	return order, false, nil
}

func (s *OrderService) replay(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, nil
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScope, key, s.Now().UTC())
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	id, err := strconv.ParseInt(rec.ResourceID, 10, 64)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// lines resolves the requested lines, reading the cart in from-cart mode.
func (s *OrderService) lines(ctx context.Context, tx *gorm.DB, userID string, in OrderInput) ([]OrderLine, error) {
	if !in.FromCart {
		return in.Items, nil
	}
	c, err := repo.GetByUser[domain.Cart](ctx, tx, userID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if c == nil || len(c.Items) == 0 {
		return nil, badRequest("cart is empty")
	}
	out := make([]OrderLine, len(c.Items))
	for i, it := range c.Items {
		out[i] = OrderLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity}
	}
	return out, nil
}

// snapshot prices one line from its variant and takes the stock.
func (s *OrderService) snapshot(ctx context.Context, tx *gorm.DB, l OrderLine) (*domain.OrderItem, error) {
	p, err := repo.Get[domain.Product](ctx, tx, l.ProductID, nil, "Variants")
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("product %s not found", l.ProductID)
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, badRequest("product %q is not available", p.Name)
	}

	var v *domain.Variant
	switch {
	case l.VariantID != "":
		for i := range p.Variants {
			if p.Variants[i].ID == l.VariantID {
				v = &p.Variants[i]
			}
		}
		if v == nil {
			return nil, notFound("variant %s not found", l.VariantID)
		}
	case len(p.Variants) == 1:
		v = &p.Variants[0]
	case len(p.Variants) == 0:
		return nil, badRequest("product %q has no purchasable variant", p.Name)
	default:
		return nil, badRequest("variant_id is required for product %q", p.Name)
	}

	if err := repo.DecrementStock(ctx, tx, v.ID, l.Quantity); err != nil {
		if errors.Is(err, repo.ErrInsufficientStock) {
			return nil, badRequest("insufficient stock for sku %s", v.SKU)
		}
		return nil, err
	}

	unit := v.EffectivePrice().Round(2)
	return &domain.OrderItem{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		VariantID: v.ID,
		Name:      p.Name,
		SKU:       v.SKU,
		Quantity:  l.Quantity,
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(l.Quantity))),
	}, nil
}

// redeem applies and consumes a coupon, returning the discount.
func (s *OrderService) redeem(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	c, err := repo.GetCouponByCode(ctx, tx, code)
	if err != nil {
		if isNotFound(err) {
			return decimal.Zero, badRequest("unknown coupon %s", code)
		}
		return decimal.Zero, err
	}
	if err := checkRedeemable(c, subtotal, s.Now()); err != nil {
		return decimal.Zero, err
	}
	if err := repo.RedeemCoupon(ctx, tx, c.ID); err != nil {
		if errors.Is(err, repo.ErrCouponExhausted) {
			return decimal.Zero, badRequest("coupon %s has reached its usage limit", code)
		}
		return decimal.Zero, err
	}
	return c.Discount.Apply(subtotal), nil
}

func clearUserCart(ctx context.Context, tx *gorm.DB, userID string) error {
	c, err := repo.GetByUser[domain.Cart](ctx, tx, userID)
	if err != nil {
		return err
	}
	return repo.ClearCart(ctx, tx, c.ID)
}

// Get returns one order. A non-empty userID restricts the lookup to that
// user's orders; other users' orders are reported as missing.
func (s *OrderService) Get(ctx context.Context, userID string, id int64) (*domain.Order, error) {
	ctx, span := orderTracer(ctx, "Get", attribute.Int64("order.id", id))
	defer span.End()

	key := s.Cache.Key(resOrders, "id:"+strconv.FormatInt(id, 10), userID)
	return cache.Fetch(ctx, s.Cache, key, 0, func(ctx context.Context) (*domain.Order, error) {
		o, err := repo.GetOrder(ctx, s.DB, id, userID)
		if err != nil {
			if isNotFound(err) {
				return nil, notFound("order not found")
			}
			return nil, err
		}
		return o, nil
	})
}

var orderSort = withTimestamps(timestampSort, "total", "status")

// ListForUser pages through the user's orders, newest first by default.
func (s *OrderService) ListForUser(ctx context.Context, userID string, q ListQuery) (*Page[domain.Order], error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	return s.list(ctx, userID, q)
}

// List pages through every order (admin view). Filter "user_id" narrows
// it to one user; "status" to one status.
func (s *OrderService) List(ctx context.Context, q ListQuery) (*Page[domain.Order], error) {
	return s.list(ctx, "", q)
}

func (s *OrderService) list(ctx context.Context, userID string, q ListQuery) (*Page[domain.Order], error) {
	ctx, span := orderTracer(ctx, "List", attribute.String("user.id", userID), attribute.Int("page", q.Page))
	defer span.End()

	q = q.paginate()
	q.Fields = nil
	p := repo.ListParams{
		SearchColumns: []string{"coupon_code", "shipping_full_name", "shipping_city"},
		Search:        q.Search,
		SortColumn:    "created_at",
		Desc:          true,
		Offset:        q.offset(),
		Limit:         q.Limit,
		Preload:       []string{"Items"},
	}
	if q.SortBy != "" {
		col, ok := orderSort[q.SortBy]
		if !ok {
			return nil, badRequest("cannot sort by %q", q.SortBy)
		}
		p.SortColumn, p.Desc = col, false
	}
	switch q.SortOrder {
	case "":
	case "asc":
		p.Desc = false
	case "desc":
		p.Desc = true
	default:
		return nil, badRequest("sortOrder must be asc or desc")
	}
	for k, v := range q.Filters {
		switch k {
		case "status":
			st, _ := v.(string)
			if !domain.OrderStatus(st).Valid() {
				return nil, badRequest("unknown status %q", st)
			}
		case "user_id":
			if userID != "" {
				return nil, badRequest("unknown filter %q", k)
			}
		default:
			return nil, badRequest("unknown filter %q", k)
		}
		if p.Exact == nil {
			p.Exact = map[string]any{}
		}
		p.Exact[k] = v
	}
	if userID != "" {
		if p.Exact == nil {
			p.Exact = map[string]any{}
		}
		p.Exact["user_id"] = userID
	}

	scope := "list"
	if userID != "" {
		scope = userScope(userID) + ":list"
	}
	key := s.Cache.Key(resOrders, scope, q)
	return cache.Fetch(ctx, s.Cache, key, 0, func(ctx context.Context) (*Page[domain.Order], error) {
		items, total, err := repo.List[domain.Order](ctx, s.DB, p)
		if err != nil {
			return nil, err
		}
		return &Page[domain.Order]{Items: items, Pagination: NewPagination(total, q.Page, q.Limit)}, nil
	})
}

// UpdateStatus moves an order along its lifecycle. Illegal transitions are
// BadRequest. Cancelling or returning restores the stock of every line.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, next domain.OrderStatus) (*domain.Order, error) {
	ctx, span := orderTracer(ctx, "UpdateStatus",
		attribute.Int64("order.id", id),
		attribute.String("order.status", string(next)),
	)
	defer span.End()

	if !next.Valid() {
		return nil, badRequest("unknown status %q", next)
	}

	var o *domain.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if o, err = repo.GetOrder(ctx, tx, id, ""); err != nil {
			if isNotFound(err) {
				return notFound("order not found")
			}
			return err
		}
		if !o.Status.CanTransition(next) {
			return badRequest("cannot move order from %s to %s", o.Status, next)
		}
		if err := repo.SetOrderStatus(ctx, tx, id, o.Status, next); err != nil {
			if isNotFound(err) {
				return conflict("order %d changed concurrently", id)
			}
			return err
		}
		if next == domain.OrderCancelled || next == domain.OrderReturned {
			for _, it := range o.Items {
				if it.VariantID == "" {
					continue
				}
				if err := repo.RestoreStock(ctx, tx, it.VariantID, it.Quantity); err != nil {
					return err
				}
			}
		}
		o.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateUser(ctx, o.UserID)
	s.Cache.InvalidatePrefix(ctx, s.Cache.Prefix(resOrders, "id", strconv.FormatInt(id, 10)))
	if next == domain.OrderCancelled || next == domain.OrderReturned {
		ids := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			ids = append(ids, it.ProductID)
		}
		invalidate(ctx, s.Cache, resProducts, ids...)
	}
	return s.Get(ctx, "", id)
}

// invalidateUser drops the user's order lists and the admin lists.
func (s *OrderService) invalidateUser(ctx context.Context, userID string) {
	s.Cache.InvalidatePrefix(ctx,
		s.Cache.Prefix(resOrders, "list"),
		s.Cache.Prefix(resOrders, "user", userID),
	)
}
