// Package cache implements the read-through cache used by the service layer.
//
// Keys are derived from a resource name, a scope and an arbitrary parameter
// value. Parameters are serialized canonically (object keys sorted at every
// depth) and hashed with xxhash, so two queries that differ only in key
// order share one entry:
//
//	storefront:products:list:9f86d081884c7d65
//	storefront:products:id:<uuid>:1b4f0e9851971998
//
// The Gateway is best-effort: a failing store is logged and counted, and the
// caller's loader runs as if the entry were missing. Cache errors never reach
// the caller. A nil *Gateway is valid and disables caching entirely.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 30 * time.Second

// Store is a byte-oriented key/value backend with TTLs and prefix deletion.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Gateway combines a Store, a Codec and stampede protection.
type Gateway struct {
	store  Store
	codec  Codec
	prefix string
	ttl    time.Duration
	group  singleflight.Group

	// loadTimeout bounds a shared load once it no longer follows the
	// context of the caller that started it.
	loadTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCodec sets the value codec (default JSON).
func WithCodec(c Codec) Option { return func(g *Gateway) { g.codec = c } }

// WithPrefix namespaces every key, e.g. "storefront:".
func WithPrefix(p string) Option { return func(g *Gateway) { g.prefix = p } }

// WithDefaultTTL sets the TTL used when Fetch is given ttl <= 0.
func WithDefaultTTL(d time.Duration) Option { return func(g *Gateway) { g.ttl = d } }

// WithLoadTimeout bounds each shared load (default 30s).
func WithLoadTimeout(d time.Duration) Option { return func(g *Gateway) { g.loadTimeout = d } }

// New returns a Gateway over store. A nil store yields a nil Gateway.
func New(store Store, opts ...Option) *Gateway {
	if store == nil {
		return nil
	}
	g := &Gateway{store: store, codec: JSONCodec{}, ttl: 10 * time.Minute, loadTimeout: defaultLoadTimeout}
	for _, o := range opts {
		o(g)
	}
	if g.loadTimeout <= 0 {
		g.loadTimeout = defaultLoadTimeout
	}
	return g
}

// Close releases the underlying store.
func (g *Gateway) Close() error {
	if g == nil {
		return nil
	}
	return g.store.Close()
}

// DeriveKey returns "<resource>:<scope>:<hash>" where hash is the xxhash of
// the canonical JSON form of params.
func DeriveKey(resource, scope string, params any) string {
	return resource + ":" + scope + ":" + hashParams(params)
}

// Key is DeriveKey with the gateway namespace applied.
func (g *Gateway) Key(resource, scope string, params any) string {
	return g.namespace() + DeriveKey(resource, scope, params)
}

// Prefix returns the namespaced prefix shared by every key of resource and
// the given scope segments, e.g. Prefix("products", "id", id).
func (g *Gateway) Prefix(resource string, scope ...string) string {
	parts := append([]string{resource}, scope...)
	return g.namespace() + strings.Join(parts, ":") + ":"
}

func (g *Gateway) namespace() string {
	if g == nil {
		return ""
	}
	return g.prefix
}

func hashParams(params any) string {
	return strconv.FormatUint(xxhash.Sum64(canonical(params)), 16)
}

// canonical re-encodes params through generic JSON values. encoding/json
// writes map keys in sorted order, so struct field order and map insertion
// order stop mattering.
func canonical(params any) []byte {
	raw, err := json.Marshal(params)
	if err != nil {
		return []byte("!" + err.Error())
	}
	var generic any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return raw
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return raw
	}
	return out
}

// Fetch returns the cached value under key or, on a miss or store failure,
// the result of load, which is then stored for ttl. Concurrent misses for
// the same key share a single load. Errors from load are returned as is and
// never cached.
func Fetch[T any](ctx context.Context, g *Gateway, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if g == nil {
		return load(ctx)
	}
	resource := resourceOf(g, key)

	if raw, ok, err := g.store.Get(ctx, key); err != nil {
		g.fail(resource, "get", key, err)
	} else if ok {
		var v T
		err := g.codec.Unmarshal(raw, &v)
		if err == nil {
			observe(resource, resultHit)
			return v, nil
		}
		g.fail(resource, "decode", key, err)
	} else {
		observe(resource, resultMiss)
	}

	// The shared load is detached from the caller that started it, so one
	// client going away does not fail the others waiting on the same key.
	// Each caller still returns as soon as its own context is done.
	ch := g.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		g.put(lctx, resource, key, v, ttl)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (g *Gateway) put(ctx context.Context, resource, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = g.ttl
	}
	raw, err := g.codec.Marshal(v)
	if err != nil {
		g.fail(resource, "encode", key, err)
		return
	}
	if err := g.store.Set(ctx, key, raw, ttl); err != nil {
		g.fail(resource, "set", key, err)
	}
}

// Invalidate deletes exact keys. Failures are logged, not returned.
func (g *Gateway) Invalidate(ctx context.Context, keys ...string) {
	if g == nil || len(keys) == 0 {
		return
	}
	if err := g.store.Delete(ctx, keys...); err != nil {
		g.fail(resourceOf(g, keys[0]), "delete", keys[0], err)
		return
	}
	for _, k := range keys {
		invalidations.WithLabelValues(resourceOf(g, k)).Inc()
	}
}

// InvalidatePrefix deletes every key starting with each prefix. Failures are
// logged, not returned.
func (g *Gateway) InvalidatePrefix(ctx context.Context, prefixes ...string) {
	if g == nil {
		return
	}
	for _, p := range prefixes {
		if p == "" || p == g.prefix {
			// Refuse to wipe the whole namespace by accident.
			continue
		}
		if err := g.store.DeletePrefix(ctx, p); err != nil {
			g.fail(resourceOf(g, p), "delete_prefix", p, err)
			continue
		}
		invalidations.WithLabelValues(resourceOf(g, p)).Inc()
	}
}

func (g *Gateway) fail(resource, op, key string, err error) {
	// The request is gone; the store did nothing wrong.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	observe(resource, resultError)
	log.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache degraded")
}

// resourceOf extracts the resource segment of a namespaced key for metric
// labels.
func resourceOf(g *Gateway, key string) string {
	k := strings.TrimPrefix(key, g.namespace())
	if i := strings.IndexByte(k, ':'); i > 0 {
		return k[:i]
	}
	return k
}
