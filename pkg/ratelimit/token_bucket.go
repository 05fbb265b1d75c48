package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiting algorithm
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64
	lastRefillTime time.Time
	mutex          sync.Mutex
	now            func() time.Time
}

// NewTokenBucket creates a bucket holding maxTokens that refills at refillRate tokens per second
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
		now:            time.Now,
	}
}

// Allow checks if a request can proceed based on the token bucket algorithm
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if n requests should be allowed based on available tokens
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := tb.now()
	tb.tokens = tb.refilled(now)
	tb.lastRefillTime = now

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

func (tb *TokenBucket) refilled(now time.Time) float64 {
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	return minFloat(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.tokens = tb.maxTokens
	tb.lastRefillTime = tb.now()
}

// Available returns the number of available tokens without consuming any
func (tb *TokenBucket) Available() float64 {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	return tb.refilled(tb.now())
}

// MaxTokens returns the bucket capacity
func (tb *TokenBucket) MaxTokens() float64 {
	return tb.maxTokens
}

// RefillRate returns tokens added per second
func (tb *TokenBucket) RefillRate() float64 {
	return tb.refillRate
}
