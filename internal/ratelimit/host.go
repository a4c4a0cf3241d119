package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry pairs a token bucket with its last access time for eviction.
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// HostLimiter implements Limiter with an independent token bucket per key.
//
// Each host gets its own rate.Limiter with the configured sustained rate
// (tokens per second) and burst capacity. A background goroutine evicts
// entries not accessed in the last 10 minutes to bound memory across a
// long run that touches many hosts.
type HostLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	done     chan struct{}
}

// NewHostLimiter creates a per-host token bucket limiter.
//   - perSecond: sustained requests per second per host
//   - burst: maximum burst size (token bucket capacity)
//
// Call Close to stop the eviction goroutine.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	h := &HostLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go h.cleanup()
	return h
}

// Wait blocks until the bucket for key has a token or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, key string) error {
	return h.bucket(key).Wait(ctx)
}

func (h *HostLimiter) bucket(key string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	e, ok := h.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(h.rate, h.burst)}
		h.entries[key] = e
	}
	e.lastAccess = now
	return e.limiter
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (h *HostLimiter) Close() error {
	h.stopOnce.Do(func() { close(h.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

// cleanup periodically evicts buckets that haven't been accessed recently.
func (h *HostLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.evictStale()
		}
	}
}

func (h *HostLimiter) evictStale() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for key, e := range h.entries {
		if e.lastAccess.Before(cutoff) {
			delete(h.entries, key)
		}
	}
}
