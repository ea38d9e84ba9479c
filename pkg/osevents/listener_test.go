package osevents

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckSleep_FiresOnSleepThenWake(t *testing.T) {
	var sleeps, wakes, locks, unlocks int32
	l := &Listener{
		tickInterval: 10 * time.Millisecond,
		cb: Callbacks{
			OnSleep:        func() { atomic.AddInt32(&sleeps, 1) },
			OnWake:         func() { atomic.AddInt32(&wakes, 1) },
			OnScreenLock:   func() { atomic.AddInt32(&locks, 1) },
			OnScreenUnlock: func() { atomic.AddInt32(&unlocks, 1) },
		},
	}

	l.checkSleep(5 * time.Millisecond) // normal tick, no transition
	require.Equal(t, int32(0), atomic.LoadInt32(&sleeps))

	l.checkSleep(100 * time.Millisecond) // skew > 3x tickInterval: suspended
	require.Equal(t, int32(1), atomic.LoadInt32(&sleeps))
	require.Equal(t, int32(1), atomic.LoadInt32(&locks))

	l.checkSleep(5 * time.Millisecond) // back to normal cadence: wake
	require.Equal(t, int32(1), atomic.LoadInt32(&wakes))
	require.Equal(t, int32(1), atomic.LoadInt32(&unlocks))
}

func TestCheckSleep_RepeatedSuspendedTicksFireOnce(t *testing.T) {
	var sleeps int32
	l := &Listener{
		tickInterval: 10 * time.Millisecond,
		cb:           Callbacks{OnSleep: func() { atomic.AddInt32(&sleeps, 1) }},
	}

	l.checkSleep(100 * time.Millisecond)
	l.checkSleep(100 * time.Millisecond)
	l.checkSleep(100 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&sleeps))
}

func TestCheckNetwork_FirstObservationNeverFires(t *testing.T) {
	var changes int32
	cache := NewReachabilityCache("127.0.0.1:1", time.Hour, 50*time.Millisecond)
	l := &Listener{
		reachability: cache,
		cb:           Callbacks{OnNetworkChange: func(bool) { atomic.AddInt32(&changes, 1) }},
	}

	l.checkNetwork(context.Background())
	require.Equal(t, int32(0), atomic.LoadInt32(&changes))
}

func TestCheckNetwork_FiresOnlyOnTransition(t *testing.T) {
	var observed []bool
	cache := NewReachabilityCache("127.0.0.1:1", time.Millisecond, 50*time.Millisecond)
	l := &Listener{
		reachability: cache,
		cb:           Callbacks{OnNetworkChange: func(online bool) { observed = append(observed, online) }},
	}

	l.checkNetwork(context.Background()) // unreachable, first observation: no fire
	require.Empty(t, observed)

	l.checkNetwork(context.Background()) // still unreachable: no transition
	require.Empty(t, observed)

	cache.mu.Lock()
	cache.lastOK = true
	cache.lastAt = time.Now()
	cache.mu.Unlock()
	l.checkNetwork(context.Background())
	require.Equal(t, []bool{true}, observed)
}

func TestRun_InvokesOnShutdownWhenContextCanceled(t *testing.T) {
	done := make(chan struct{})
	l := New(5*time.Millisecond, NewReachabilityCache("127.0.0.1:1", time.Hour, 10*time.Millisecond), Callbacks{
		OnShutdown: func() { close(done) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnShutdown was not invoked")
	}
}
