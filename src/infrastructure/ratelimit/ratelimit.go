// Package ratelimit implements per-key request limiting with a token
// bucket per caller. Stale entries are cleaned up inline during Allow
// calls, no background goroutine.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	staleThreshold  = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per key. A key is typically a client IP
// or API key.
type Limiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// PerMinute builds a limiter allowing n requests per minute per key, with
// a full bucket granted to new keys.
func PerMinute(n int) *Limiter {
	return New(float64(n)/60, n)
}

// New creates a limiter refilling r tokens per second up to burst.
func New(r float64, burst int) *Limiter {
	return &Limiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Limit(r),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from key may proceed, consuming one
// token when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > staleThreshold {
				delete(l.visitors, k)
			}
		}
		l.lastCleanup = now
	}

	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}

	v.lastSeen = now
	return v.limiter.Allow()
}

// Tracked returns the number of keys currently held.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
