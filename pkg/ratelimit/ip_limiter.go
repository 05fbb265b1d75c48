package ratelimit

import (
	"sync"
	"time"
)

type ipEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// IPRateLimiter rate limits based on IP addresses
type IPRateLimiter struct {
	limiters   map[string]*ipEntry
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	cleanup    *time.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

// NewIPRateLimiter creates a limiter with one bucket per client IP.
// Buckets not used for idleTTL are dropped by a background sweep.
func NewIPRateLimiter(maxTokens, refillRate float64, idleTTL time.Duration) *IPRateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	limiter := &IPRateLimiter{
		limiters:   make(map[string]*ipEntry),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    idleTTL,
		cleanup:    time.NewTicker(idleTTL),
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}

	go limiter.cleanupLoop()

	return limiter
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	entry, exists := ipl.limiters[ip]

	if !exists {
		entry = &ipEntry{bucket: NewTokenBucket(ipl.maxTokens, ipl.refillRate)}
		ipl.limiters[ip] = entry
	}

	entry.lastSeen = ipl.now()
	return entry.bucket
}

func (ipl *IPRateLimiter) cleanupLoop() {
	for {
		select {
		case <-ipl.cleanup.C:
			ipl.evictIdle()
		case <-ipl.stopChan:
			ipl.cleanup.Stop()
			return
		}
	}
}

// evictIdle removes buckets that have not been used for idleTTL
func (ipl *IPRateLimiter) evictIdle() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	cutoff := ipl.now().Add(-ipl.idleTTL)
	evicted := 0

	for ip, entry := range ipl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(ipl.limiters, ip)
			evicted++
		}
	}

	return evicted
}

// Size returns the number of tracked IPs
func (ipl *IPRateLimiter) Size() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	return len(ipl.limiters)
}

// GetMetrics returns the limiter settings and tracked client count
func (ipl *IPRateLimiter) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"max_tokens":  ipl.maxTokens,
		"refill_rate": ipl.refillRate,
		"idle_ttl":    ipl.idleTTL.String(),
		"tracked_ips": ipl.Size(),
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() {
		close(ipl.stopChan)
	})
}
