// Command server runs the storefront HTTP API.
//
//	@title						Storefront API
//	@version					1.0
//	@description				Catalog, promotions, carts, wishlists and orders for an online store.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	UserID
//	@in							header
//	@name						X-User-ID
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-storefront-backend/internal/cache"
	"github.com/tbourn/go-storefront-backend/internal/config"
	httpapi "github.com/tbourn/go-storefront-backend/internal/http"
	"github.com/tbourn/go-storefront-backend/internal/observability"
	"github.com/tbourn/go-storefront-backend/internal/repo"
	"github.com/tbourn/go-storefront-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	os.Exit(run(cfg))
}

func run(cfg config.Config) int {
	ctx := context.Background()
	build := observability.Build{
		Version:     sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Environment: cfg.GinMode,
	}

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, build)
	if err != nil {
		log.Error().Err(err).Msg("otel setup failed")
		return 1
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DBDSN)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
		return 1
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Error().Err(err).Msg("migrate database")
		return 1
	}

	gw, err := openCache(ctx, cfg.Cache)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Cache.Backend).Msg("open cache")
		return 1
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, gw, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", build.Version).
			Str("db", cfg.DBDriver).
			Str("cache", cfg.Cache.Backend).
			Msg("storefront listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Operations run concurrently; each closes one dependency.
	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": srv.Shutdown,
		"cache": func(context.Context) error {
			return gw.Close()
		},
		"database": func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
		"otel": otelShutdown,
	})
	code := <-wait
	log.Info().Int("exit_code", code).Msg("storefront stopped")
	return code
}

// openCache builds the cache gateway selected by cfg.Backend. "none"
// returns a nil gateway, which disables caching.
func openCache(ctx context.Context, cfg config.CacheConfig) (*cache.Gateway, error) {
	var store cache.Store
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "", "memory":
		store = cache.NewMemoryStore(cfg.Capacity, max(cfg.TTL, cfg.PromoTTL))
	case "redis":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rs, err := cache.DialRedis(dialCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return cache.New(store,
		cache.WithPrefix(cfg.Prefix),
		cache.WithCodec(cache.CodecByName(cfg.Codec)),
		cache.WithDefaultTTL(cfg.TTL),
	), nil
}
