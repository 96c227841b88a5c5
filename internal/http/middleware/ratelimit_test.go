package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	key := KeyByUserOrIP()(c)
	if !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	if got := KeyByIP()(c); got != key {
		t.Fatalf("KeyByIP = %q, want %q", got, key)
	}

	// a non-uint value is ignored
	c.Set("userID", "u123")
	if got := KeyByUserOrIP()(c); got != key {
		t.Fatalf("string userID should fall back to ip; got %q", got)
	}

	c.Set("userID", uint(123))
	if got := KeyByUserOrIP()(c); got != "user:123" {
		t.Fatalf("expected user-based key; got %q", got)
	}
	if got := KeyByIP()(c); !strings.HasPrefix(got, "ip:") {
		t.Fatalf("KeyByIP must ignore the user; got %q", got)
	}
}

func TestNewRateLimiter_BurstCoercion_AndReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}

	lim := rl.limiterFor("k1")
	if lim == nil {
		t.Fatalf("expected limiter")
	}
	if got := rl.limiterFor("k1"); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
}

func TestRateLimiter_IdleEviction(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{
		limiter:  rate.NewLimiter(1, 1),
		lastSeen: time.Now().Add(-time.Hour),
	}
	rl.lookups = rl.gcEvery - 1
	rl.mu.Unlock()

	_ = rl.limiterFor("new")

	rl.mu.Lock()
	_, existsOld := rl.visitors["old"]
	_, existsNew := rl.visitors["new"]
	rl.mu.Unlock()

	if existsOld {
		t.Fatalf("expected 'old' visitor to be evicted")
	}
	if !existsNew {
		t.Fatalf("expected 'new' visitor to be created")
	}
}

func TestRateLimiter_Handler_AllowThenDeny(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(RequestID())
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req2.Header.Set("X-Request-ID", "rid-2")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" || body["message"] != "rate limit exceeded" || body["request_id"] != "rid-2" {
		t.Fatalf("unexpected JSON body: %v", body)
	}
}

func TestRateLimiter_SeparateBucketsPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u == "a" {
			c.Set("userID", uint(1))
		} else {
			c.Set("userID", uint(2))
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Test-User", user)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do("a") != http.StatusNoContent || do("b") != http.StatusNoContent {
		t.Fatalf("first request per user should pass")
	}
	if do("a") != http.StatusTooManyRequests {
		t.Fatalf("user a should be limited")
	}
}

func TestRetryAfter(t *testing.T) {
	if got := retryAfter(rate.NewLimiter(rate.Inf, 1)); got != 1 {
		t.Fatalf("inf limiter retry = %d", got)
	}
	lim := rate.NewLimiter(0.5, 1)
	lim.Allow()
	if got := retryAfter(lim); got != 2 {
		t.Fatalf("0.5 rps retry = %d, want 2", got)
	}
}
