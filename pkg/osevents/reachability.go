package osevents

import (
	"context"
	"net"
	"sync"
	"time"
)

// DefaultReachabilityTTL is how long a reachability result is cached before
// being re-checked, so repeated IsReachable calls within the TTL do not
// dial again.
const DefaultReachabilityTTL = 30 * time.Second

// ReachabilityCache TTL-caches a TCP reachability probe against target.
type ReachabilityCache struct {
	target string
	ttl    time.Duration
	dialer net.Dialer

	mu       sync.Mutex
	lastAt   time.Time
	lastOK   bool
	hasValue bool
}

// NewReachabilityCache constructs a cache that probes target (host:port)
// with dialTimeout, refreshing at most once per ttl.
func NewReachabilityCache(target string, ttl, dialTimeout time.Duration) *ReachabilityCache {
	return &ReachabilityCache{
		target: target,
		ttl:    ttl,
		dialer: net.Dialer{Timeout: dialTimeout},
	}
}

// IsReachable returns the cached result if still fresh, otherwise dials
// target and refreshes the cache.
func (c *ReachabilityCache) IsReachable(ctx context.Context) bool {
	c.mu.Lock()
	if c.hasValue && time.Since(c.lastAt) < c.ttl {
		ok := c.lastOK
		c.mu.Unlock()
		return ok
	}
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.target)
	ok := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	c.mu.Lock()
	c.lastAt = time.Now()
	c.lastOK = ok
	c.hasValue = true
	c.mu.Unlock()

	return ok
}

// Invalidate forces the next IsReachable call to re-probe regardless of TTL,
// discarding any cached value.
func (c *ReachabilityCache) Invalidate() {
	c.mu.Lock()
	c.hasValue = false
	c.mu.Unlock()
}
