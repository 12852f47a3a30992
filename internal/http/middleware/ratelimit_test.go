package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func newLimitedRouter(rl *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.Use(pre...)
	r.Use(rl.Handler())
	r.GET("/cart", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func getCart(r http.Handler, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyUserID, "alice")
	if got := KeyByUserOrIP()(c); got != "user:alice" {
		t.Fatalf("user key = %q", got)
	}
}

func TestNewRateLimiter_Coercion(t *testing.T) {
	rl := NewRateLimiter(-3, 0, KeyByUserOrIP())
	if rl.burst != 1 || rl.limit != 0 {
		t.Fatalf("burst=%d limit=%v", rl.burst, rl.limit)
	}
	now := time.Now()
	if a, b := rl.bucketFor("k", now), rl.bucketFor("k", now); a != b {
		t.Fatal("bucket not reused")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	rl.sweepAt = 2
	now := time.Now()

	rl.buckets["user:gone"] = &bucket{lim: rate.NewLimiter(1, 1), seen: now.Add(-time.Hour)}
	_ = rl.bucketFor("user:alice", now) // call 1, no sweep
	_ = rl.bucketFor("user:bob", now)   // call 2, sweep

	if _, ok := rl.buckets["user:gone"]; ok {
		t.Fatal("idle bucket survived the sweep")
	}
	if len(rl.buckets) != 2 || rl.calls != 0 {
		t.Fatalf("buckets=%d calls=%d", len(rl.buckets), rl.calls)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if IsRateBypass(c) {
		t.Fatal("bypass by default")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatal("non-bool flag read as bypass")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatal("bypass flag ignored")
	}
}

func TestRateLimiter_Handler_PerUserBudget(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.5, 2, KeyByUserOrIP())
	rl.now = func() time.Time { return fixed }
	r := newLimitedRouter(rl, func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	before := testutil.ToFloat64(rateLimited)

	w := getCart(r, "alice")
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "2" || w.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first: code=%d headers=%v", w.Code, w.Header())
	}
	if w = getCart(r, "alice"); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("second: code=%d remaining=%q", w.Code, w.Header().Get("X-RateLimit-Remaining"))
	}

	w = getCart(r, "alice")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third: code=%d", w.Code)
	}
	// One token every two seconds.
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("body = %v", body)
	}
	if got := testutil.ToFloat64(rateLimited); got != before+1 {
		t.Fatalf("rate_limited_total = %v; want %v", got, before+1)
	}

	// Other callers have their own bucket; anonymous traffic is keyed by IP.
	if w = getCart(r, "bob"); w.Code != http.StatusOK {
		t.Fatalf("bob: code=%d", w.Code)
	}
	if w = getCart(r, ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous: code=%d", w.Code)
	}
}

func TestRateLimiter_Handler_ReplayBypass(t *testing.T) {
	rl := NewRateLimiter(0, 1, KeyByUserOrIP())
	r := newLimitedRouter(rl)
	if w := getCart(r, "alice"); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	if w := getCart(r, "alice"); w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second: code=%d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}

	replay := newLimitedRouter(rl, func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	if w := getCart(replay, "alice"); w.Code != http.StatusOK {
		t.Fatalf("replay: %d", w.Code)
	}
}

func Test_retryAfter(t *testing.T) {
	cases := []struct {
		limit  rate.Limit
		tokens float64
		want   int
	}{
		{0, 0, 1},
		{1, 0, 1},
		{0.5, 0, 2},
		{0.5, 0.5, 1},
		{0.001, 0, 1000},
		{10, 0.99, 1},
		{2, 1.5, 1},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.limit, tc.tokens); got != tc.want {
			t.Errorf("retryAfter(%v, %v) = %d; want %d", tc.limit, tc.tokens, got, tc.want)
		}
	}
}
