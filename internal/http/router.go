// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-storefront-backend/docs"
	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/config"
	"github.com/tbourn/go-storefront-backend/internal/http/handlers"
	"github.com/tbourn/go-storefront-backend/internal/http/middleware"
	"github.com/tbourn/go-storefront-backend/internal/repo"
	"github.com/tbourn/go-storefront-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// NewServices builds the service layer over db and the cache gateway.
// A nil gateway disables caching.
func NewServices(db *gorm.DB, gw *cache.Gateway, cfg config.Config) handlers.Deps {
	carts := services.NewCartService(db, gw)
	orders := services.NewOrderService(db, gw)
	if cfg.IdempotencyTTL > 0 {
		orders.IdempotencyTTL = cfg.IdempotencyTTL
	}
	return handlers.Deps{
		DB:         db,
		Products:   services.NewProductService(db, gw),
		Brands:     services.NewBrandService(db, gw),
		Categories: services.NewCategoryService(db, gw),
		Stores:     services.NewStoreService(db, gw),
		Campaigns:  services.NewCampaignService(db, gw, cfg.Cache.PromoTTL),
		Offers:     services.NewOfferService(db, gw, cfg.Cache.PromoTTL),
		Coupons:    services.NewCouponService(db, gw),
		Carts:      carts,
		Wishlists:  services.NewWishlistService(db, gw, carts),
		Orders:     orders,
	}
}

// idempotencyLookup reports whether a live order key exists. Lookup
// failures are treated as misses; the order service re-checks inside its
// own transaction.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return rec != nil, nil
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with header scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Identity (the rate limiter keys on it)
//  8. CORS, security headers and gzip
//
// The rate limiter is mounted on the API group so that POST /orders can run
// the idempotency validator first and skip limiting on a replay.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw *cache.Gateway, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", middleware.HeaderUserID},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Identity())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		PrivatePrefixes: privatePrefixes(cfg.APIBasePath),
		EnablePolicy:    true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(NewServices(db, gw, cfg))
	limit := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler()
	base := groupWithPrefix(r, cfg.APIBasePath)
	base.POST("/orders", middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: services.IdempotencyScope},
		idempotencyLookup(db),
	), limit, h.Orders.Create)

	api := base.Group("", limit)

	products := api.Group("/products")
	{
		products.GET("", h.Products.List)
		products.POST("", h.Products.Create)
		products.GET("/:id", h.Products.Get)
		products.PUT("/:id", h.Products.Update)
		products.PATCH("/:id/status", h.Products.UpdateStatus)
		products.DELETE("/:id", h.Products.Delete)

		products.POST("/:id/variants", h.Products.AddVariant)
		products.PUT("/:id/variants/:variantId", h.Products.UpdateVariant)
		products.DELETE("/:id/variants/:variantId", h.Products.DeleteVariant)
		products.POST("/:id/reviews", h.Products.AddReview)
		products.DELETE("/:id/reviews/:reviewId", h.Products.DeleteReview)
		products.POST("/:id/faqs", h.Products.AddFAQ)
		products.DELETE("/:id/faqs/:faqId", h.Products.DeleteFAQ)
	}

	mountEntity(api.Group("/brands"), h.Brands)
	mountEntity(api.Group("/categories"), h.Categories)
	mountEntity(api.Group("/stores"), h.Stores)
	mountEntity(api.Group("/campaigns"), h.Campaigns)
	mountEntity(api.Group("/offers"), h.Offers)

	coupons := api.Group("/coupons")
	coupons.POST("/validate", h.Coupons.Validate)
	mountEntity(coupons, h.Coupons.Entity)

	cart := api.Group("/cart")
	{
		cart.GET("", h.Cart.Get)
		cart.DELETE("", h.Cart.Clear)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:itemId", h.Cart.UpdateItem)
		cart.DELETE("/items/:itemId", h.Cart.RemoveItem)
	}

	wishlist := api.Group("/wishlist")
	{
		wishlist.GET("", h.Wishlist.Get)
		wishlist.DELETE("", h.Wishlist.Clear)
		wishlist.POST("/items", h.Wishlist.AddItem)
		wishlist.DELETE("/items/:itemId", h.Wishlist.RemoveItem)
		wishlist.POST("/items/:itemId/move-to-cart", h.Wishlist.MoveToCart)
	}

	orders := api.Group("/orders")
	{
		orders.GET("", h.Orders.ListMine)
		orders.GET("/:id", h.Orders.Get)
		orders.PATCH("/:id/status", h.Orders.UpdateStatus)
	}
	api.GET("/admin/orders", h.Orders.ListAll)
}

// mountEntity registers the six CRUD routes shared by every catalog entity.
func mountEntity[T any](g *gin.RouterGroup, e *handlers.Entity[T]) {
	g.GET("", e.List)
	g.POST("", e.Create)
	g.GET("/:id", e.Get)
	g.PUT("/:id", e.Update)
	g.PATCH("/:id/status", e.UpdateStatus)
	g.DELETE("/:id", e.Delete)
}

// corsMiddleware returns the CORS chain. With no configured origins every
// origin is allowed; otherwise allowed origins are echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Set ACAO even without an Origin header so plain health checks see it.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// privatePrefixes lists the per-caller route trees under the API base.
func privatePrefixes(apiBase string) []string {
	base := strings.TrimSuffix(apiBase, "/")
	return []string{base + "/cart", base + "/wishlist", base + "/orders", base + "/admin"}
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
