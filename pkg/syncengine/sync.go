package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/offlinequeue"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"

	"encoding/json"

	"github.com/betterqa-sync/agent-core/pkg/syncapi"
)

// ErrDeregistered is returned by Sync when the remote's heartbeat response
// instructs the agent to deregister; the orchestrator is expected to stop
// scheduling further cycles and return to the unauthenticated state.
var ErrDeregistered = errors.New("syncengine: remote requested deregistration")

// Sync runs one fetch -> transform -> dedupe -> upload -> drain cycle. It is
// safe to call concurrently with Pause/Resume/SetPrivateMode, though the
// scheduler that owns it guarantees at most one Sync in flight at a time.
func (e *Engine) Sync(ctx context.Context) (synctypes.SyncStats, error) {
	stats := synctypes.SyncStats{}

	e.mu.Lock()
	skip := e.st.paused || e.st.privateMode || e.st.networkPaused
	e.mu.Unlock()
	if skip {
		stats.Success = true
		return stats, nil
	}

	e.mu.Lock()
	needsServerConfig := !e.st.serverConfigFetched
	e.mu.Unlock()
	if needsServerConfig {
		// Step 2: the very first reachable cycle pulls the server config
		// before touching the tracker, so privacy policy and sync cadence
		// are in effect from the first batch onward. Unreachable remotes
		// are not fatal to the cycle; the flag stays unset and the next
		// cycle retries.
		if err := e.FetchServerConfig(ctx); err != nil {
			e.o11y.Logger().Warn(ctx, "server config not yet fetched; remote unreachable", observability.Error(err))
		}
	}

	if !e.tracker.IsRunning(ctx) {
		return stats, fmt.Errorf("syncengine: tracker not running")
	}

	e.ensureSession(ctx)

	windowBuckets, err := e.tracker.GetWindowBuckets(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncengine: list window buckets: %w", err)
	}
	webBuckets, err := e.tracker.GetWebBuckets(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncengine: list web buckets: %w", err)
	}
	afkBuckets, err := e.tracker.GetAFKBuckets(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncengine: list afk buckets: %w", err)
	}
	inputBuckets, err := e.tracker.GetInputBuckets(ctx)
	if err != nil {
		return stats, fmt.Errorf("syncengine: list input buckets: %w", err)
	}

	all := append(append(append(append([]synctypes.Bucket{}, windowBuckets...), webBuckets...), afkBuckets...), inputBuckets...)
	stats.Buckets = len(all)

	var toSend []synctypes.Event
	var windowRaw, afkRaw []synctypes.Event

	consume := func(events []synctypes.Event) {
		for _, ev := range events {
			result := e.transform(ev)
			if result.keep {
				toSend = append(toSend, result.event)
			} else {
				stats.Filtered++
			}
		}
	}

	for _, b := range webBuckets {
		events, err := e.fetchBucketEvents(ctx, b.ID, &stats)
		if err != nil {
			continue
		}
		consume(events)
		e.clearPostPauseFloor(b.ID)
		if err := e.advanceCheckpoint(ctx, b.ID, events); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}
	for _, b := range inputBuckets {
		events, err := e.fetchBucketEvents(ctx, b.ID, &stats)
		if err != nil {
			continue
		}
		consume(events)
		e.clearPostPauseFloor(b.ID)
		if err := e.advanceCheckpoint(ctx, b.ID, events); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}
	for _, b := range afkBuckets {
		events, err := e.fetchBucketEvents(ctx, b.ID, &stats)
		if err != nil {
			continue
		}
		afkRaw = append(afkRaw, events...)
		consume(events)
		e.clearPostPauseFloor(b.ID)
		if err := e.advanceCheckpoint(ctx, b.ID, events); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}

	for _, b := range windowBuckets {
		events, err := e.fetchBucketEvents(ctx, b.ID, &stats)
		if err != nil {
			continue
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

		if len(events) > 0 {
			windowStart := events[0].Timestamp
			windowEnd := events[len(events)-1].End()
			afkForRange, err := e.fetchAFKCovering(ctx, afkBuckets, windowStart, windowEnd)
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
			} else {
				stats.GapsFilled += gapFill(events, afkForRange)
			}
		}

		windowRaw = append(windowRaw, events...)
		consume(events)
		e.clearPostPauseFloor(b.ID)

		if err := e.advanceCheckpoint(ctx, b.ID, events); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}

	if gaps := countCoverageGaps(windowRaw, afkRaw); gaps > 0 {
		e.o11y.Logger().Warn(ctx, "not-afk intervals with no overlapping window event",
			observability.Int("uncovered_intervals", gaps))
	}

	if err := e.uploadBatches(ctx, toSend, &stats); err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		if errors.Is(err, syncapi.ErrAuth) {
			// Invariant 6: a failed auth is never retried in-band; it
			// surfaces to the orchestrator, which drives re-authentication.
			return stats, err
		}
	}

	if err := e.drainQueue(ctx, &stats); err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		if errors.Is(err, syncapi.ErrAuth) {
			return stats, err
		}
	}

	e.mu.Lock()
	e.st.heartbeatCounter++
	due := e.opts.HeartbeatInterval > 0 && e.st.heartbeatCounter%e.opts.HeartbeatInterval == 0
	e.mu.Unlock()
	if due {
		if err := e.doHeartbeat(ctx); err != nil {
			if errors.Is(err, ErrDeregistered) {
				return stats, err
			}
			stats.Errors = append(stats.Errors, err.Error())
		}
	}

	stats.Success = len(stats.Errors) == 0
	return stats, nil
}

// fetchBucketEvents resolves bucketID's look-back start and fetches its
// events since then, recording fetch failures and growing stats.Fetched on
// success. A non-nil error means the bucket contributed nothing this cycle.
func (e *Engine) fetchBucketEvents(ctx context.Context, bucketID string, stats *synctypes.SyncStats) ([]synctypes.Event, error) {
	start, err := e.fetchWindowStart(ctx, bucketID)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return nil, err
	}
	events, err := e.tracker.GetEvents(ctx, bucketID, &start, nil, 0)
	if err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		return nil, err
	}
	stats.Fetched += len(events)
	return events, nil
}

// fetchAFKCovering fetches, from every afk bucket, the events overlapping
// [start, end] — the span spec step 6c asks for to evaluate gap-fill
// coverage against.
func (e *Engine) fetchAFKCovering(ctx context.Context, afkBuckets []synctypes.Bucket, start, end time.Time) ([]synctypes.Event, error) {
	var out []synctypes.Event
	for _, b := range afkBuckets {
		events, err := e.tracker.GetEvents(ctx, b.ID, &start, &end, 0)
		if err != nil {
			return nil, fmt.Errorf("syncengine: fetch afk coverage for %s: %w", b.ID, err)
		}
		out = append(out, events...)
	}
	return out, nil
}

func (e *Engine) ensureSession(ctx context.Context) {
	e.mu.Lock()
	active := e.st.sessionActive
	e.mu.Unlock()
	if active {
		return
	}
	if err := e.remote.StartSession(ctx); err != nil {
		e.o11y.Logger().Warn(ctx, "best-effort session start failed", observability.Error(err))
		return
	}
	e.mu.Lock()
	e.st.sessionActive = true
	e.mu.Unlock()
}

func (e *Engine) advanceCheckpoint(ctx context.Context, bucketID string, events []synctypes.Event) error {
	if len(events) == 0 {
		return nil
	}
	var newest synctypes.Event
	found := false
	for _, ev := range events {
		if !found || ev.Timestamp.After(newest.Timestamp) {
			newest = ev
			found = true
		}
	}
	if !found {
		return nil
	}
	return e.queue.SetCheckpoint(ctx, bucketID, newest.Timestamp, newest.ID)
}

// uploadBatches splits events into BatchSize chunks and sends each in turn.
// A transient or connection-level failure diverts that chunk, and every
// remaining chunk, to the offline queue rather than aborting the cycle. A
// permanent failure is recorded and the offending chunk is dropped, since
// retrying it can never succeed.
func (e *Engine) uploadBatches(ctx context.Context, events []synctypes.Event, stats *synctypes.SyncStats) error {
	batchSize := e.opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultOptions().BatchSize
	}

	for i := 0; i < len(events); i += batchSize {
		end := i + batchSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[i:end]

		processed, _, err := e.remote.SendEvents(ctx, chunk)
		if err == nil {
			stats.Sent += processed
			continue
		}

		if errors.Is(err, syncapi.ErrAuth) {
			e.enqueueRemainder(ctx, events[i:], stats)
			return fmt.Errorf("syncengine: upload: %w", err)
		}
		if errors.Is(err, syncapi.ErrTransient) {
			e.enqueueRemainder(ctx, events[i:], stats)
			return nil
		}

		stats.Errors = append(stats.Errors, fmt.Sprintf("dropping %d events after permanent error: %v", len(chunk), err))
	}
	return nil
}

func (e *Engine) enqueueRemainder(ctx context.Context, events []synctypes.Event, stats *synctypes.SyncStats) {
	if len(events) == 0 {
		return
	}
	n, err := e.queue.Enqueue(ctx, events)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("failed to queue %d events: %v", len(events), err))
		return
	}
	stats.Queued += n
}

// sendOrQueue sends a single synthesized event (e.g. a private-time
// summary) immediately, falling back to the offline queue on any error so
// it is never silently lost.
func (e *Engine) sendOrQueue(ctx context.Context, events []synctypes.Event) error {
	_, _, err := e.remote.SendEvents(ctx, events)
	if err == nil {
		return nil
	}
	if _, qerr := e.queue.Enqueue(ctx, events); qerr != nil {
		return fmt.Errorf("syncengine: send failed (%v) and queue failed: %w", err, qerr)
	}
	return nil
}

// drainQueue uploads previously queued events, respecting the engine's
// current backoff window. Each attempt sends up to
// maxQueueDrainMultiplier*BatchSize events, in BatchSize sub-batches, so one
// very large backlog cannot starve a single cycle indefinitely.
func (e *Engine) drainQueue(ctx context.Context, stats *synctypes.SyncStats) error {
	e.mu.Lock()
	backoffUntil := e.st.queueBackoffUntil
	e.mu.Unlock()
	if time.Now().UTC().Before(backoffUntil) {
		return nil
	}

	correlationID, _ := offlinequeue.NewCorrelationID()

	batchSize := e.opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultOptions().BatchSize
	}
	budget := batchSize * maxQueueDrainMultiplier

	for budget > 0 {
		n := batchSize
		if n > budget {
			n = budget
		}
		queued, err := e.queue.Dequeue(ctx, n)
		if err != nil {
			return fmt.Errorf("syncengine: drain queue: %w", err)
		}
		if len(queued) == 0 {
			break
		}

		events := make([]synctypes.Event, 0, len(queued))
		ids := make([]int64, 0, len(queued))
		for _, qe := range queued {
			var ev synctypes.Event
			if err := json.Unmarshal(qe.EventBlob, &ev); err != nil {
				ids = append(ids, qe.RowID)
				continue
			}
			events = append(events, ev)
			ids = append(ids, qe.RowID)
		}

		processed, _, err := e.remote.SendEvents(ctx, events)
		if err == nil {
			stats.Sent += processed
			if rmErr := e.queue.Remove(ctx, ids); rmErr != nil {
				return fmt.Errorf("syncengine: remove drained rows: %w", rmErr)
			}
			e.resetQueueBackoff()
			budget -= n
			continue
		}

		e.o11y.Logger().Warn(ctx, "queue drain attempt failed",
			observability.String("correlation_id", correlationID), observability.Error(err))

		if errors.Is(err, syncapi.ErrAuth) {
			return fmt.Errorf("syncengine: drain queue: %w", err)
		}

		if errors.Is(err, syncapi.ErrPermanent) {
			if rmErr := e.queue.Remove(ctx, ids); rmErr != nil {
				return fmt.Errorf("syncengine: drop permanently-failed rows: %w", rmErr)
			}
			continue
		}

		if incErr := e.queue.IncrementRetry(ctx, ids); incErr != nil {
			return fmt.Errorf("syncengine: increment retry: %w", incErr)
		}
		if _, remErr := e.queue.RemoveFailed(ctx, e.opts.MaxRetries); remErr != nil {
			return fmt.Errorf("syncengine: remove exhausted rows: %w", remErr)
		}
		e.armQueueBackoff()
		return nil
	}
	return nil
}

// armQueueBackoff applies the queue drain's own schedule
// (min(600s, 60*2^(n-1))) after a failed drain attempt, distinct from
// retry.Policy's jittered schedule since the queue backoff spans sync
// cycles rather than attempts within one HTTP call.
func (e *Engine) armQueueBackoff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.queueConsecutiveFailures++
	n := e.st.queueConsecutiveFailures
	seconds := 60 * (1 << (n - 1))
	if seconds > 600 {
		seconds = 600
	}
	e.st.queueBackoffUntil = time.Now().UTC().Add(time.Duration(seconds) * time.Second)
}

func (e *Engine) resetQueueBackoff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.queueConsecutiveFailures = 0
	e.st.queueBackoffUntil = time.Time{}
}

// doHeartbeat reports liveness, applies any commands the remote attaches to
// the response, and refreshes server config when it reports having
// changed.
func (e *Engine) doHeartbeat(ctx context.Context) error {
	resp, err := e.remote.Heartbeat(ctx, syncapi.HeartbeatRequest{
		AgentVersion: e.opts.AgentVersion,
		Timezone:     e.opts.Timezone,
	})
	if err != nil {
		return fmt.Errorf("syncengine: heartbeat: %w", err)
	}

	if resp.MinimumAgentVersion != "" && versionLess(e.opts.AgentVersion, resp.MinimumAgentVersion) {
		e.o11y.Logger().Warn(ctx, "agent version below server minimum, continuing in degraded mode",
			observability.String("running", e.opts.AgentVersion), observability.String("minimum", resp.MinimumAgentVersion))
	}

	for _, cmd := range resp.Commands {
		switch cmd.Type {
		case "pause":
			if err := e.Pause(ctx); err != nil {
				return fmt.Errorf("syncengine: heartbeat pause command: %w", err)
			}
		case "deregister":
			_ = e.remote.EndSession(ctx, synctypes.ReasonServerDeregister)
			return ErrDeregistered
		}
	}

	if resp.ConfigUpdated {
		if err := e.FetchServerConfig(ctx); err != nil {
			return fmt.Errorf("syncengine: refresh config after heartbeat: %w", err)
		}
	}
	return nil
}

// versionLess compares two "MAJOR.MINOR.PATCH"-shaped version strings
// numerically. Non-numeric or short components compare as 0, so
// malformed versions never panic; they simply fail open.
func versionLess(a, b string) bool {
	pa, pb := splitVersion(a), splitVersion(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

func splitVersion(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, _ := strconv.Atoi(strings.TrimSpace(parts[i]))
		out[i] = n
	}
	return out
}
