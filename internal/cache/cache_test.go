package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listQuery struct {
	Page   int               `json:"page"`
	Limit  int               `json:"limit"`
	Filter map[string]any    `json:"filter"`
	Sort   map[string]string `json:"sort"`
}

func TestDeriveKey_OrderIndependent(t *testing.T) {
	a := map[string]any{"page": 1, "limit": 10, "filter": map[string]any{"is_active": true, "search": "mug"}}
	b := map[string]any{"filter": map[string]any{"search": "mug", "is_active": true}, "limit": 10, "page": 1}

	ka := DeriveKey("products", "list", a)
	kb := DeriveKey("products", "list", b)
	assert.Equal(t, ka, kb)
	assert.Regexp(t, `^products:list:[0-9a-f]+$`, ka)

	// A struct and the equivalent map agree too.
	s := listQuery{Page: 1, Limit: 10, Filter: map[string]any{"search": "mug", "is_active": true}}
	m := map[string]any{"page": 1, "limit": 10, "filter": map[string]any{"is_active": true, "search": "mug"}, "sort": nil}
	assert.Equal(t, DeriveKey("products", "list", s), DeriveKey("products", "list", m))

	assert.NotEqual(t, ka, DeriveKey("products", "list", map[string]any{"page": 2, "limit": 10}))
	assert.NotEqual(t, ka, DeriveKey("brands", "list", a))
}

func TestGateway_KeyAndPrefix(t *testing.T) {
	g := New(NewMemoryStore(16, time.Hour), WithPrefix("sf:"))
	key := g.Key("products", "id:abc", []string{"name"})
	assert.True(t, len(key) > len(g.Prefix("products", "id", "abc")))
	assert.Equal(t, "sf:products:id:abc:", g.Prefix("products", "id", "abc"))
	assert.Equal(t, "sf:products:list:", g.Prefix("products", "list"))
	assert.Contains(t, key, g.Prefix("products", "id", "abc"))
}

func TestFetch_MissThenHit(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(16, time.Hour))
	var calls int32
	load := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"a", "b"}, nil
	}

	v1, err := Fetch(ctx, g, "k", time.Minute, load)
	require.NoError(t, err)
	v2, err := Fetch(ctx, g, "k", time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetch_LoadErrorNotCached(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(16, time.Hour))
	boom := errors.New("boom")
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	}

	_, err := Fetch(ctx, g, "k", 0, load)
	assert.ErrorIs(t, err, boom)
	v, err := Fetch(ctx, g, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

type brokenStore struct{ sets int32 }

func (b *brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (b *brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	atomic.AddInt32(&b.sets, 1)
	return errors.New("connection refused")
}
func (b *brokenStore) Delete(context.Context, ...string) error { return errors.New("connection refused") }
func (b *brokenStore) DeletePrefix(context.Context, string) error {
	return errors.New("connection refused")
}
func (b *brokenStore) Close() error { return nil }

func TestFetch_StoreFailureFallsBackToLoader(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{}
	g := New(store)

	v, err := Fetch(ctx, g, "k", 0, func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&store.sets))

	// Invalidation failures are swallowed.
	g.Invalidate(ctx, "k")
	g.InvalidatePrefix(ctx, "products:")
}

func TestFetch_NilGatewayBypasses(t *testing.T) {
	var g *Gateway
	calls := 0
	for i := 0; i < 2; i++ {
		v, err := Fetch(context.Background(), g, "k", 0, func(context.Context) (int, error) {
			calls++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, 2, calls)
	g.Invalidate(context.Background(), "k")
	g.InvalidatePrefix(context.Background(), "p:")
	assert.NoError(t, g.Close())
	assert.Nil(t, New(nil))
}

func TestFetch_ConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(16, time.Hour))
	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(ctx, g, "hot", 0, load)
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestFetch_CanceledCallerDoesNotFailSharedLoad(t *testing.T) {
	g := New(NewMemoryStore(16, time.Hour))
	var calls int32
	started, release := make(chan struct{}), make(chan struct{})
	load := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "fresh", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Fetch(ctxA, g, "hot", 0, load)
		errA <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := Fetch(context.Background(), g, "hot", 0, load)
		resB <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond) // let B join the flight

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller kept waiting on the shared load")
	}

	close(release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, "fresh", got.v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// The detached load still populated the cache.
	v, err := Fetch(context.Background(), g, "hot", 0, func(context.Context) (string, error) { return "reloaded", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestFetch_SharedLoadIsBounded(t *testing.T) {
	g := New(NewMemoryStore(16, time.Hour), WithLoadTimeout(20*time.Millisecond))
	_, err := Fetch(context.Background(), g, "slow", 0, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, defaultLoadTimeout, New(NewMemoryStore(1, time.Hour), WithLoadTimeout(0)).loadTimeout)
}

func TestGateway_failIgnoresContextErrors(t *testing.T) {
	g := New(NewMemoryStore(1, time.Hour))
	counter := requests.WithLabelValues("orders", resultError)
	before := testutil.ToFloat64(counter)

	g.fail("orders", "get", "orders:id:1", context.Canceled)
	g.fail("orders", "get", "orders:id:1", fmt.Errorf("redis get: %w", context.DeadlineExceeded))
	assert.Equal(t, before, testutil.ToFloat64(counter))

	g.fail("orders", "get", "orders:id:1", errors.New("connection refused"))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestInvalidatePrefix_RemovesOnlyMatching(t *testing.T) {
	ctx := context.Background()
	g := New(NewMemoryStore(64, time.Hour), WithPrefix("sf:"))
	keys := []string{
		g.Key("products", "list", 1),
		g.Key("products", "list", 2),
		g.Key("brands", "list", 1),
	}
	for _, k := range keys {
		_, err := Fetch(ctx, g, k, 0, func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}

	g.InvalidatePrefix(ctx, g.Prefix("products", "list"))
	// Namespace-wide prefixes are refused.
	g.InvalidatePrefix(ctx, "sf:", "")

	reloaded := 0
	for _, k := range keys {
		_, _ = Fetch(ctx, g, k, 0, func(context.Context) (int, error) { reloaded++; return 2, nil })
	}
	assert.Equal(t, 2, reloaded)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(8, time.Hour)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("x"), time.Minute))
	_, ok, _ := m.Get(ctx, "a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
}

type priced struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
	Tags  []string        `json:"tags,omitempty"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	in := priced{Name: "Mug", Price: decimal.RequireFromString("9.99"), At: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC), Tags: []string{"x"}}
	for _, c := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			raw, err := c.Marshal(in)
			require.NoError(t, err)
			var out priced
			require.NoError(t, c.Unmarshal(raw, &out))
			assert.Equal(t, in.Name, out.Name)
			assert.True(t, in.Price.Equal(out.Price))
			assert.True(t, in.At.Equal(out.At))
			assert.Equal(t, in.Tags, out.Tags)
		})
	}
	assert.Equal(t, "msgpack", CodecByName("msgpack").Name())
	assert.Equal(t, "json", CodecByName("anything").Name())
}
