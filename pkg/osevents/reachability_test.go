package osevents

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReachabilityCache_TrueWhenTargetAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	cache := NewReachabilityCache(ln.Addr().String(), time.Minute, 200*time.Millisecond)
	require.True(t, cache.IsReachable(context.Background()))
}

func TestReachabilityCache_FalseWhenTargetRefuses(t *testing.T) {
	// Port 0 resolved then immediately closed is not guaranteed unreachable on
	// all platforms; 127.0.0.1:1 (tcpmux) reliably refuses in a container.
	cache := NewReachabilityCache("127.0.0.1:1", time.Minute, 200*time.Millisecond)
	require.False(t, cache.IsReachable(context.Background()))
}

func TestReachabilityCache_CachesWithinTTL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	cache := NewReachabilityCache(ln.Addr().String(), time.Hour, 200*time.Millisecond)
	require.True(t, cache.IsReachable(context.Background()))

	// Close the listener; a cached result must still report reachable since
	// the TTL (1h) has not elapsed, proving the dial was not repeated.
	ln.Close()
	require.True(t, cache.IsReachable(context.Background()))
}

func TestReachabilityCache_InvalidateForcesReprobe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	cache := NewReachabilityCache(ln.Addr().String(), time.Hour, 200*time.Millisecond)
	require.True(t, cache.IsReachable(context.Background()))

	ln.Close()
	cache.Invalidate()
	require.False(t, cache.IsReachable(context.Background()))
}
