package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func windowEvent(ts time.Time, duration float64, app string) synctypes.Event {
	return synctypes.Event{
		Timestamp:  ts,
		Duration:   duration,
		BucketType: synctypes.BucketWindow,
		Data:       map[string]any{"app": app},
	}
}

func afkEvent(ts time.Time, duration float64, status string) synctypes.Event {
	return synctypes.Event{
		Timestamp:  ts,
		Duration:   duration,
		BucketType: synctypes.BucketAFK,
		Data:       map[string]any{"status": status},
	}
}

func TestGapFill_BridgesShortSameAppGapCoveredByNotAFK(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	events := []synctypes.Event{
		windowEvent(t0, 10, "Code.exe"),
		windowEvent(t0.Add(15*time.Second), 10, "Code.exe"),
	}
	afk := []synctypes.Event{
		afkEvent(t0, 30, synctypes.StatusNotAFK),
	}

	filled := gapFill(events, afk)
	require.Equal(t, 1, filled)
	require.Equal(t, 15.0, events[0].Duration)
}

func TestGapFill_DoesNotBridgeDifferentApps(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	events := []synctypes.Event{
		windowEvent(t0, 10, "Code.exe"),
		windowEvent(t0.Add(15*time.Second), 10, "Chrome.exe"),
	}
	afk := []synctypes.Event{afkEvent(t0, 30, synctypes.StatusNotAFK)}

	filled := gapFill(events, afk)
	require.Equal(t, 0, filled)
	require.Equal(t, 10.0, events[0].Duration)
}

func TestGapFill_DoesNotBridgeBelowMinGap(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	events := []synctypes.Event{
		windowEvent(t0, 10, "Code.exe"),
		windowEvent(t0.Add(11*time.Second), 10, "Code.exe"), // 1s gap after End(), below minGap
	}
	afk := []synctypes.Event{afkEvent(t0, 30, synctypes.StatusNotAFK)}

	filled := gapFill(events, afk)
	require.Equal(t, 0, filled)
}

func TestGapFill_DoesNotBridgeAboveMaxGap(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	events := []synctypes.Event{
		windowEvent(t0, 10, "Code.exe"),
		windowEvent(t0.Add(10*time.Minute), 10, "Code.exe"),
	}
	afk := []synctypes.Event{afkEvent(t0, 20*time.Minute.Seconds(), synctypes.StatusNotAFK)}

	filled := gapFill(events, afk)
	require.Equal(t, 0, filled)
}

func TestGapFill_DoesNotBridgeWhenAFKDuringGap(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	events := []synctypes.Event{
		windowEvent(t0, 10, "Code.exe"),
		windowEvent(t0.Add(20*time.Second), 10, "Code.exe"),
	}
	// not-afk only covers the first event, not the gap.
	afk := []synctypes.Event{afkEvent(t0, 10, synctypes.StatusNotAFK)}

	filled := gapFill(events, afk)
	require.Equal(t, 0, filled)
}

func TestCoveredByNotAFK_EmptyRangeIsCovered(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	require.True(t, coveredByNotAFK(t0, t0, nil))
}

func TestCoveredByNotAFK_GapBetweenIntervals(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	intervals := []afkInterval{
		{start: t0, end: t0.Add(5 * time.Second)},
		{start: t0.Add(10 * time.Second), end: t0.Add(20 * time.Second)},
	}
	require.False(t, coveredByNotAFK(t0, t0.Add(15*time.Second), intervals))
}

func TestCoveredByNotAFK_ContiguousIntervalsCoverFully(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	intervals := []afkInterval{
		{start: t0, end: t0.Add(10 * time.Second)},
		{start: t0.Add(10 * time.Second), end: t0.Add(20 * time.Second)},
	}
	require.True(t, coveredByNotAFK(t0, t0.Add(20*time.Second), intervals))
}

func TestCountCoverageGaps_FlagsUncoveredNotAFKSpan(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	afk := []synctypes.Event{afkEvent(t0, 60, synctypes.StatusNotAFK)}
	// window event falls entirely outside the not-afk span: no overlap at all.
	windowEvents := []synctypes.Event{windowEvent(t0.Add(2*time.Hour), 10, "Code.exe")}

	gaps := countCoverageGaps(windowEvents, afk)
	require.Equal(t, 1, gaps)
}

func TestCountCoverageGaps_NoGapsWhenFullyCovered(t *testing.T) {
	t0 := mustParse(t, "2026-01-01T10:00:00Z")
	afk := []synctypes.Event{afkEvent(t0, 60, synctypes.StatusNotAFK)}
	windowEvents := []synctypes.Event{windowEvent(t0, 60, "Code.exe")}

	gaps := countCoverageGaps(windowEvents, afk)
	require.Equal(t, 0, gaps)
}
