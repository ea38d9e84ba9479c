package syncengine

import (
	"context"
	"sort"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/linq"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

// minGap and maxGap bound the silence between two same-app window events
// that gapFill is willing to bridge: shorter gaps are noise (focus
// flicker between windows of the same app), longer gaps are a real
// context switch even if the AFK watcher insists the user stayed active.
const (
	minGap = 2 * time.Second
	maxGap = 5 * time.Minute
)

// fetchWindowStart computes the lower bound to request bucketID's events
// from: two minutes behind the last checkpoint (to catch duration growth
// on an event that was still open at the previous checkpoint), or a full
// day behind now if this bucket has never been checkpointed. A pending
// post-pause floor (armed by Resume) overrides both when it is later, so a
// cycle immediately after resuming asks the tracker for less than it did
// before pausing. This is a fetch-window optimization only: the floor
// itself is enforced authoritatively by transform, since a tracker is free
// to ignore the requested start and return pre-resume events anyway.
func (e *Engine) fetchWindowStart(ctx context.Context, bucketID string) (time.Time, error) {
	cp, ok, err := e.queue.GetCheckpoint(ctx, bucketID)
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now().UTC()
	var start time.Time
	if !ok || cp.LastEventTimestamp.IsZero() {
		start = now.Add(-firstRunLookback)
	} else {
		start = cp.LastEventTimestamp.Add(-lookbackWindow)
	}

	e.mu.Lock()
	floor, hasFloor := e.st.postPauseFloor[bucketID]
	e.mu.Unlock()
	if hasFloor && floor.After(start) {
		start = floor
	}

	return start, nil
}

// clearPostPauseFloor drops bucketID's post-pause floor once its events
// have been through transform for the first post-resume cycle, per spec
// §9: the floor is "cleared after first successful sync" for that bucket.
func (e *Engine) clearPostPauseFloor(bucketID string) {
	e.mu.Lock()
	delete(e.st.postPauseFloor, bucketID)
	e.mu.Unlock()
}

// afkInterval is a contiguous not-afk span derived from an AFK bucket.
type afkInterval struct {
	start, end time.Time
}

// notAFKIntervals extracts the not-afk spans from a set of AFK bucket
// events, sorted by start time.
func notAFKIntervals(events []synctypes.Event) []afkInterval {
	notAFK := linq.Filter(events, func(ev synctypes.Event) bool { return ev.Status() == synctypes.StatusNotAFK })
	out := linq.Map(notAFK, func(ev synctypes.Event) afkInterval {
		return afkInterval{start: ev.Timestamp, end: ev.End()}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

// coveredByNotAFK reports whether [start, end) is entirely spanned by the
// union of notAFK (already sorted ascending by start), i.e. a chronological
// walk through the intervals leaves no uncovered sub-interval.
func coveredByNotAFK(start, end time.Time, notAFK []afkInterval) bool {
	if !start.Before(end) {
		return true
	}
	cursor := start
	for _, iv := range notAFK {
		if iv.end.Before(cursor) || iv.end.Equal(cursor) {
			continue
		}
		if iv.start.After(cursor) {
			return false
		}
		if iv.end.After(cursor) {
			cursor = iv.end
		}
		if !cursor.Before(end) {
			return true
		}
	}
	return !cursor.Before(end)
}

// gapFill implements spec step 6d: for each consecutive pair of same-app
// window events whose silence is within [minGap, maxGap] and whose gap is
// entirely covered by not-afk AFK activity, extend the earlier event's
// duration to meet the next event's start. events must already be sorted
// ascending by timestamp; it is mutated in place. Returns the number of
// gaps bridged.
func gapFill(events []synctypes.Event, afkEvents []synctypes.Event) int {
	if len(events) < 2 {
		return 0
	}
	notAFK := notAFKIntervals(afkEvents)

	filled := 0
	for i := 0; i < len(events)-1; i++ {
		cur := &events[i]
		next := events[i+1]
		if cur.App() != next.App() {
			continue
		}
		gap := next.Timestamp.Sub(cur.End())
		if gap < minGap || gap > maxGap {
			continue
		}
		if !coveredByNotAFK(cur.End(), next.Timestamp, notAFK) {
			continue
		}
		cur.Duration = next.Timestamp.Sub(cur.Timestamp).Seconds()
		filled++
	}
	return filled
}

// countCoverageGaps reports how many not-afk intervals have no overlapping
// window event at all, a signal that the window watcher missed activity
// (crashed, was killed, or stalled) that the AFK watcher still observed.
// The engine does not fabricate replacement window events for these gaps —
// doing so would invent application/title data the watcher never
// reported — but surfaces the count in logs so operators can see that
// attribution of that span is incomplete. This is distinct from gapFill,
// which extends an existing event's duration rather than flags a hole.
func countCoverageGaps(windowEvents []synctypes.Event, afkEvents []synctypes.Event) int {
	notAFK := notAFKIntervals(afkEvents)
	gaps := 0
	for _, interval := range notAFK {
		covered := false
		for _, we := range windowEvents {
			if we.Timestamp.Before(interval.end) && we.End().After(interval.start) {
				covered = true
				break
			}
		}
		if !covered {
			gaps++
		}
	}
	return gaps
}
