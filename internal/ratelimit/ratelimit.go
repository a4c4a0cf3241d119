// Package ratelimit caps outbound request throughput per target host.
//
// The generator should look like a person, not a crawler: even in bursty
// pacing modes no single host may see a request flood. The Limiter
// interface is the contract; HostLimiter is the default implementation.
package ratelimit

import "context"

// Limiter gates requests identified by an opaque key (here: the target
// hostname). Implementations must be safe for concurrent use.
type Limiter interface {
	// Wait blocks until the request for key may proceed or ctx is done.
	Wait(ctx context.Context, key string) error

	// Close releases resources (cleanup goroutines).
	Close() error
}

// NoopLimiter permits every request immediately. Used when rate limiting
// is disabled.
type NoopLimiter struct{}

// Wait returns immediately.
func (NoopLimiter) Wait(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
