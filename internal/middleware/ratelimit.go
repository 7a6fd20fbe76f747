package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter is a simple token bucket rate limiter.
type RateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		lastRefill: time.Now(),
		refillRate: refillRate,
	}
}

// Allow reports whether a request may proceed, refilling tokens based on
// elapsed time since the last call.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed >= rl.refillRate {
		tokensToAdd := int(elapsed / rl.refillRate)
		rl.tokens = min(rl.maxTokens, rl.tokens+tokensToAdd)
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// KeyFunc extracts the rate-limit bucket key from a request — by webhook
// source, org id, or remote IP depending on where the middleware is mounted.
type KeyFunc func(c *fiber.Ctx) string

// ByIP keys the limiter on the client's remote IP.
func ByIP(c *fiber.Ctx) string { return c.IP() }

// ByOrgHeader keys the limiter on the X-Org-Id header, falling back to IP
// when absent — used on org-scoped admin/manual-trigger endpoints.
func ByOrgHeader(c *fiber.Ctx) string {
	if org := c.Get("X-Org-Id"); org != "" {
		return org
	}
	return c.IP()
}

// RateLimitMiddleware throttles inbound requests per bucket key (org,
// webhook source, or IP), independent of the per-recipient notification
// rate limits enforced by the policy engine.
type RateLimitMiddleware struct {
	limiters   map[string]*RateLimiter
	mu         sync.RWMutex
	maxTokens  int
	refillRate time.Duration
	keyFunc    KeyFunc
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(maxTokens int, refillRate time.Duration, keyFunc KeyFunc) *RateLimitMiddleware {
	if keyFunc == nil {
		keyFunc = ByIP
	}
	return &RateLimitMiddleware{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		keyFunc:    keyFunc,
	}
}

// Handler returns the fiber middleware function.
func (m *RateLimitMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := m.keyFunc(c)
		limiter := m.getLimiter(key)

		if !limiter.Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate_limited",
			})
		}

		return c.Next()
	}
}

func (m *RateLimitMiddleware) getLimiter(key string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[key]; !exists {
			limiter = NewRateLimiter(m.maxTokens, m.refillRate)
			m.limiters[key] = limiter
		}
		m.mu.Unlock()
	}

	return limiter
}
