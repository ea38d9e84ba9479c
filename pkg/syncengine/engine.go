// Package syncengine implements the core pull -> transform -> dedupe ->
// gap-fill -> send algorithm: the sync agent's single most
// algorithmically dense component. It owns no goroutine of its own — its
// Sync method is invoked by pkg/scheduler — but must tolerate concurrent
// Pause/Resume/SetPrivateMode/SetCurrentProject calls from OS-event and
// user-action callbacks while a cycle is in flight, so every state
// mutation funnels through one mutex.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/offlinequeue"
	"github.com/betterqa-sync/agent-core/pkg/privacy"
	"github.com/betterqa-sync/agent-core/pkg/syncapi"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
	"github.com/betterqa-sync/agent-core/pkg/trackerclient"
)

// lookbackWindow is the 2-minute overlap into already-observed time used to
// catch duration growth on still-open events.
const lookbackWindow = 2 * time.Minute

// firstRunLookback bounds how far back the very first cycle for a bucket
// reaches when no checkpoint exists yet.
const firstRunLookback = 24 * time.Hour

// sentCacheLimit is the maximum number of (bucket_id, id) pairs retained in
// the dedupe cache before the oldest are evicted.
const sentCacheLimit = 10000

// maxQueueDrainMultiplier bounds a single queue-drain pass to
// maxQueueDrainMultiplier * BatchSize events.
const maxQueueDrainMultiplier = 10

// ConfigUpdatedHook is invoked whenever a fresh server config is applied,
// with the ServerConfig as received. ServerConfig has no AFK-timeout field,
// so the hook carries no AFK timeout.
type ConfigUpdatedHook func(ctx context.Context, cfg syncapi.ServerConfig)

// Options configures an Engine at construction time.
type Options struct {
	BatchSize         int
	HeartbeatInterval int // sync cycles between heartbeat() calls
	MaxRetries        int // queued-batch retry ceiling before it is dropped
	AgentVersion      string
	Timezone          string
	WindowWatcherName string // bucket-id prefix or exact name the window bucket lookups key off
	OnConfigUpdated   ConfigUpdatedHook
}

// DefaultOptions provides 100-event sub-batches, a heartbeat every 10
// cycles, and five queued-batch retries.
func DefaultOptions() Options {
	return Options{
		BatchSize:         100,
		HeartbeatInterval: 10,
		MaxRetries:        5,
		AgentVersion:      "0.0.0",
		Timezone:          "UTC",
	}
}

// state is the engine's in-memory SyncState, guarded by Engine.mu.
type state struct {
	paused            bool
	networkPaused     bool
	privateMode       bool
	privateStart      time.Time
	currentProject    *string
	sessionActive     bool
	heartbeatCounter  int
	queueBackoffUntil time.Time
	queueConsecutiveFailures int
	serverConfigFetched      bool
	privacyPolicy            synctypes.PrivacyPolicy

	// postPauseFloor holds, per bucket, the resume time after which events
	// are accepted; cleared after the first successful post-resume cycle
	// for that bucket.
	postPauseFloor map[string]time.Time

	sentCache      map[synctypes.Key]float64
	sentCacheOrder []synctypes.Key
}

// Engine is the sync agent's core orchestration component.
type Engine struct {
	tracker *trackerclient.Client
	remote  *syncapi.Client
	queue   *offlinequeue.Store
	o11y    observability.Observability
	opts    Options

	mu     sync.Mutex
	st     state
	filter *privacy.Filter
}

// New constructs an Engine. filter should reflect DefaultPrivacyPolicy until
// FetchServerConfig succeeds for the first time.
func New(tracker *trackerclient.Client, remote *syncapi.Client, queue *offlinequeue.Store, o11y observability.Observability, opts Options) *Engine {
	policy := synctypes.DefaultPrivacyPolicy()
	return &Engine{
		tracker: tracker,
		remote:  remote,
		queue:   queue,
		o11y:    o11y,
		opts:    opts,
		filter:  privacy.New(policy),
		st: state{
			postPauseFloor: make(map[string]time.Time),
			sentCache:      make(map[synctypes.Key]float64),
			privacyPolicy:  policy,
		},
	}
}

// Pause stops the engine from uploading events and fast-forwards every
// known bucket's checkpoint to now, so nothing observed while paused is
// ever later uploaded.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	already := e.st.paused
	e.st.paused = true
	e.mu.Unlock()
	if already {
		return nil
	}
	return e.fastForwardCheckpoints(ctx)
}

// Resume clears the paused flag and arms the post-pause floor for every
// bucket at the current instant, so the next cycle's look-back window
// cannot resurrect events observed while paused.
func (e *Engine) Resume(ctx context.Context) error {
	now := time.Now().UTC()
	checkpoints, err := e.queue.GetAllCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: resume: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.paused = false
	for bucketID := range checkpoints {
		e.st.postPauseFloor[bucketID] = now
	}
	return nil
}

// SetNetworkPaused implements the network-offline OS event mapping:
// paused for upload purposes, but distinct from a user pause so the tray
// can distinguish QUEUED from PAUSED.
func (e *Engine) SetNetworkPaused(paused bool) {
	e.mu.Lock()
	e.st.networkPaused = paused
	e.mu.Unlock()
}

// SetPrivateMode enters or exits private mode. Entering fast-forwards every
// checkpoint to now, identically to Pause. Exiting synthesizes a single
// private_time summary event and sends it, queueing it if the send fails;
// an error is returned only when both the send and the enqueue fail.
func (e *Engine) SetPrivateMode(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	wasEnabled := e.st.privateMode
	e.mu.Unlock()

	if enabled {
		if wasEnabled {
			return nil
		}
		e.mu.Lock()
		e.st.privateMode = true
		e.st.privateStart = time.Now().UTC()
		e.mu.Unlock()
		return e.fastForwardCheckpoints(ctx)
	}

	if !wasEnabled {
		return nil
	}
	e.mu.Lock()
	start := e.st.privateStart
	e.st.privateMode = false
	e.mu.Unlock()

	now := time.Now().UTC()
	ev := synctypes.Event{
		Timestamp:  start,
		Duration:   now.Sub(start).Seconds(),
		BucketType: synctypes.BucketPrivateTime,
		Data:       map[string]any{"status": "private"},
	}
	return e.sendOrQueue(ctx, []synctypes.Event{ev})
}

// SetCurrentProject tags subsequent outgoing events with projectID, or
// clears the tag when projectID is nil.
func (e *Engine) SetCurrentProject(projectID *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.currentProject = projectID
}

// FetchServerConfig pulls the remote's config and applies its sync cadence
// and privacy policy, invoking the OnConfigUpdated hook.
func (e *Engine) FetchServerConfig(ctx context.Context) error {
	cfg, err := e.remote.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: fetch server config: %w", err)
	}
	e.mu.Lock()
	e.st.serverConfigFetched = true
	e.st.privacyPolicy = cfg.Privacy
	e.filter = privacy.New(cfg.Privacy)
	e.mu.Unlock()

	if e.opts.OnConfigUpdated != nil {
		e.opts.OnConfigUpdated(ctx, cfg)
	}
	return nil
}

// Status is the engine's externally visible state snapshot.
type Status struct {
	Paused          bool
	NetworkPaused   bool
	PrivateMode     bool
	SessionActive   bool
	CurrentProject  *string
	QueueBackoff    time.Time
}

// GetStatus returns a snapshot of the engine's current mode.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Paused:         e.st.paused,
		NetworkPaused:  e.st.networkPaused,
		PrivateMode:    e.st.privateMode,
		SessionActive:  e.st.sessionActive,
		CurrentProject: e.st.currentProject,
		QueueBackoff:   e.st.queueBackoffUntil,
	}
}

// Shutdown ends the active session (if any) with reason app_quit. The
// caller is responsible for closing the HTTP client and queue afterward,
// in that order.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	active := e.st.sessionActive
	e.st.sessionActive = false
	e.mu.Unlock()
	if !active {
		return nil
	}
	return e.remote.EndSession(ctx, synctypes.ReasonAppQuit)
}

func (e *Engine) fastForwardCheckpoints(ctx context.Context) error {
	buckets, err := e.allBucketIDs(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: enumerate buckets: %w", err)
	}
	now := time.Now().UTC()
	for _, bucketID := range buckets {
		if err := e.queue.SetCheckpoint(ctx, bucketID, now, 0); err != nil {
			return fmt.Errorf("syncengine: fast-forward checkpoint %s: %w", bucketID, err)
		}
	}
	return nil
}

func (e *Engine) allBucketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, fetch := range []func(context.Context) ([]synctypes.Bucket, error){
		e.tracker.GetWindowBuckets, e.tracker.GetWebBuckets, e.tracker.GetAFKBuckets, e.tracker.GetInputBuckets,
	} {
		buckets, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}
