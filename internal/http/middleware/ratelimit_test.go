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
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// Build a context with a known RemoteAddr
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	// Ensure a deterministic IP for ClientIP()
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	// IP fallback when no userID
	key := KeyByUserOrIP()(c)
	if !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("expected ip-based key; got %q", key)
	}

	// Prefer userID when present
	c.Set("userID", "u123")
	key2 := KeyByUserOrIP()(c)
	if key2 != "user:u123" {
		t.Fatalf("expected user-based key; got %q", key2)
	}
}

func TestFixedWindowLimiter_Allow_ExhaustAndReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewFixedWindowLimiter(map[Class]Budget{
		ClassGeneral: {Limit: 3, Window: time.Minute},
	}, KeyByUserOrIP())
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ClassGeneral, "user:a"); !ok {
			t.Fatalf("request %d should fit the budget", i+1)
		}
	}

	ok, retry := l.Allow(ClassGeneral, "user:a")
	if ok {
		t.Fatalf("4th request in same window should be denied")
	}
	if retry != time.Minute {
		t.Fatalf("expected retry-after of a full minute, got %v", retry)
	}

	// A different identity has its own counter.
	if ok, _ := l.Allow(ClassGeneral, "user:b"); !ok {
		t.Fatalf("other identity should not share the counter")
	}

	// Partway through, Retry-After shrinks to the window remainder.
	now = now.Add(45 * time.Second)
	ok, retry = l.Allow(ClassGeneral, "user:a")
	if ok {
		t.Fatalf("still inside the window; should remain denied")
	}
	if retry != 15*time.Second {
		t.Fatalf("expected 15s remaining, got %v", retry)
	}

	// Once the window elapses the counter starts over.
	now = now.Add(15 * time.Second)
	if ok, _ := l.Allow(ClassGeneral, "user:a"); !ok {
		t.Fatalf("new window should admit the request")
	}
}

func TestFixedWindowLimiter_ClassIsolationAndFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewFixedWindowLimiter(map[Class]Budget{
		ClassGeneral:    {Limit: 2, Window: time.Minute},
		ClassSendRemind: {Limit: 1, Window: time.Hour},
	}, KeyByUserOrIP())
	l.now = func() time.Time { return now }

	// Same identity, different classes: independent counters.
	if ok, _ := l.Allow(ClassSendRemind, "user:a"); !ok {
		t.Fatalf("first send should be allowed")
	}
	if ok, _ := l.Allow(ClassSendRemind, "user:a"); ok {
		t.Fatalf("second send within the hour should be denied")
	}
	if ok, _ := l.Allow(ClassGeneral, "user:a"); !ok {
		t.Fatalf("general budget should be untouched by send/remind")
	}

	// A class without its own budget borrows the general budget values but
	// keeps its own counter.
	if ok, _ := l.Allow(ClassUpload, "user:a"); !ok {
		t.Fatalf("upload should fall back to the general budget")
	}
	if ok, _ := l.Allow(ClassUpload, "user:a"); !ok {
		t.Fatalf("upload counter is independent of the general counter")
	}
	if ok, _ := l.Allow(ClassUpload, "user:a"); ok {
		t.Fatalf("fallback budget (limit 2) should now be spent")
	}
}

func TestFixedWindowLimiter_OpportunisticGC(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewFixedWindowLimiter(map[Class]Budget{
		ClassGeneral: {Limit: 10, Window: time.Minute},
	}, KeyByUserOrIP())
	l.now = func() time.Time { return now }

	// Seed an entry, then age it past the TTL.
	if ok, _ := l.Allow(ClassGeneral, "user:old"); !ok {
		t.Fatalf("seed request should be allowed")
	}
	now = now.Add(l.ttl + time.Minute)

	// Force cleanup to run on the next lookup.
	l.mu.Lock()
	l.cleanupN = 4999
	l.mu.Unlock()

	_, _ = l.Allow(ClassGeneral, "user:new")

	l.mu.Lock()
	_, existsOld := l.windows["general|user:old"]
	_, existsNew := l.windows["general|user:new"]
	l.mu.Unlock()

	if existsOld {
		t.Fatalf("expected idle counter to be evicted by opportunistic GC")
	}
	if !existsNew {
		t.Fatalf("expected fresh counter to be created")
	}
}

func TestFixedWindowLimiter_Handler_Allow_Deny(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Limit 1 per minute: first request allowed, second denied.
	l := NewFixedWindowLimiter(map[Class]Budget{
		ClassGeneral: {Limit: 1, Window: time.Minute},
	}, KeyByUserOrIP())

	r := gin.New()
	// Set a request-id header like our real stack would, so JSON has it (may be empty otherwise)
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(l.Handler(ClassGeneral))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["message"] != "rate limit exceeded" {
		t.Fatalf("unexpected JSON body: %v", body)
	}
	if _, ok := body["retry_after_seconds"]; !ok {
		t.Fatalf("expected retry_after_seconds in body: %v", body)
	}
}
