// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a lightweight, in-memory, fixed-window rate limiter
// with per-identity counters and opportunistic garbage collection. Requests
// are grouped into route classes (general API traffic, auth, uploads,
// send/remind), each with its own window budget; a client identity gets one
// counter per class.
//
// Features:
//   - Fixed-window counters keyed by (identity, route class)
//   - Pluggable identity function (user ID or client IP)
//   - Retry-After derived from the window's reset time, not a constant
//   - Best-effort cleanup of idle counters to bound memory
//
// Notes:
//   - This limiter is process-local. For horizontally scaled deployments,
//     prefer a distributed limiter (e.g., Redis-backed) to enforce global
//     limits; within one window the counters only need monotonic
//     non-decrease and eventual reset, so approximate counting elsewhere is
//     acceptable.
//   - The send/remind class is a coarse backstop above the per-assignment
//     reminder cooldown; it deliberately does not distinguish initial sends
//     from reminders.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Class is a route class with its own fixed-window budget.
type Class string

const (
	// ClassGeneral covers ordinary API traffic.
	ClassGeneral Class = "general"
	// ClassAuth covers authentication endpoints.
	ClassAuth Class = "auth"
	// ClassUpload covers file-upload endpoints (the public answer
	// submission accompanies a recording upload).
	ClassUpload Class = "upload"
	// ClassSendRemind covers initial sends and reminders; both consume the
	// same budget.
	ClassSendRemind Class = "send_remind"
)

// Budget is the request allowance for one window of one class.
type Budget struct {
	Limit  int
	Window time.Duration
}

// keyFunc selects the identity used to key a rate-limit counter.
//
// Implementations should return a stable string for the duration of a request
// (e.g., "user:<id>" or "ip:<addr>").
type keyFunc func(*gin.Context) string

// KeyByUserOrIP returns a keyFunc that prefers a user identity (from the Gin
// context under "userID", typically set by your auth middleware) and falls back
// to the client IP address.
//
// The resulting keys are prefixed to avoid collisions between user and IP
// namespaces (e.g., "user:abc123" vs "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// window holds one identity's counter for one class, plus the last time it
// was seen so idle entries can be evicted.
type window struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// FixedWindowLimiter implements per-(identity, class) fixed-window request
// limiting.
//
// Counters are created on demand and stored in an internal map guarded by a
// mutex. Idle counters are evicted after a TTL via opportunistic cleanup
// during lookups to keep memory usage bounded.
//
// This type is safe for concurrent use.
type FixedWindowLimiter struct {
	budgets map[Class]Budget
	keyFn   keyFunc

	mu       sync.Mutex
	windows  map[string]*window
	ttl      time.Duration
	cleanupN uint64

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewFixedWindowLimiter constructs a limiter with the given class budgets,
// keyed by keyFn. Classes without a budget fall back to the general budget;
// a missing general budget denies nothing (the class check is skipped).
//
// The idle-entry TTL is derived from the longest configured window so a
// counter is never evicted while its window could still be live.
func NewFixedWindowLimiter(budgets map[Class]Budget, keyFn keyFunc) *FixedWindowLimiter {
	ttl := 10 * time.Minute
	for _, b := range budgets {
		if 2*b.Window > ttl {
			ttl = 2 * b.Window
		}
	}
	return &FixedWindowLimiter{
		budgets: budgets,
		keyFn:   keyFn,
		windows: make(map[string]*window),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow consumes one request from the (class, key) window. It reports
// whether the request fits the budget and, when it does not, how long until
// the window resets.
func (l *FixedWindowLimiter) Allow(class Class, key string) (bool, time.Duration) {
	b, ok := l.budgets[class]
	if !ok {
		b, ok = l.budgets[ClassGeneral]
		if !ok {
			return true, 0
		}
	}

	now := l.now()
	mapKey := string(class) + "|" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	// Opportunistic cleanup after a threshold of lookups, then reset the
	// counter. Run it before touching the requested entry so an old entry
	// can be evicted even when it is the one being fetched.
	l.cleanupN++
	if l.cleanupN >= 5000 {
		for k, w := range l.windows {
			if now.Sub(w.lastSeen) >= l.ttl {
				delete(l.windows, k)
			}
		}
		l.cleanupN = 0
	}

	w, ok := l.windows[mapKey]
	if !ok || now.Sub(w.start) >= b.Window {
		// First request of a fresh window.
		l.windows[mapKey] = &window{start: now, count: 1, lastSeen: now}
		return true, 0
	}

	w.lastSeen = now
	if w.count >= b.Limit {
		return false, w.start.Add(b.Window).Sub(now)
	}
	w.count++
	return true, 0
}

// Handler returns a Gin middleware that enforces the fixed-window budget of
// the given route class.
//
// The middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds until the window resets>
//	{
//	  "request_id":          "<uuid>",
//	  "code":                "rate_limited",
//	  "message":             "rate limit exceeded",
//	  "retry_after_seconds": 117
//	}
func (l *FixedWindowLimiter) Handler(class Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := l.Allow(class, l.keyFn(c))
		if ok {
			c.Next()
			return
		}

		secs := int(math.Ceil(retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":          c.Writer.Header().Get("X-Request-ID"),
			"code":                "rate_limited",
			"message":             "rate limit exceeded",
			"retry_after_seconds": secs,
		})
	}
}
