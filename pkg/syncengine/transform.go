package syncengine

import (
	"time"

	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

// minEventDuration is the shortest duration an event may have to be
// uploaded; shorter events are noise from rapid window-focus flicker.
const minEventDuration = 0.5

// maxFutureSkew bounds how far into the future a clamped timestamp may sit,
// absorbing small clock drift between this host and the tracker without
// letting a badly-skewed clock push events far ahead of "now".
const maxFutureSkew = 60 * time.Second

// transformResult is one event alongside whether it passed the privacy
// filter and dedupe check and should be uploaded.
type transformResult struct {
	event synctypes.Event
	keep  bool
}

// transform applies the privacy filter, page-category inference, and the
// current project tag to a raw tracker event, and checks it against the
// sent cache. Events already seen with a duration that has not grown are
// dropped; a still-open event whose duration increased is re-sent so the
// remote can extend it in place (Invariant 1: idempotent re-upload).
func (e *Engine) transform(ev synctypes.Event) transformResult {
	// Clamp first: timestamp never more than maxFutureSkew ahead of now,
	// duration never negative.
	if now := time.Now().UTC(); ev.Timestamp.After(now.Add(maxFutureSkew)) {
		ev.Timestamp = now.Add(maxFutureSkew)
	}
	if ev.Duration < 0 {
		ev.Duration = 0
	}

	if ev.Duration < minEventDuration {
		return transformResult{keep: false}
	}

	app := ev.App()
	if e.filter.ShouldExclude(app) {
		return transformResult{keep: false}
	}

	e.mu.Lock()
	filter := e.filter
	projectID := e.st.currentProject
	key := synctypes.Key{BucketID: ev.BucketID, ID: ev.ID}
	prevDuration, seen := e.st.sentCache[key]
	floor, hasFloor := e.st.postPauseFloor[ev.BucketID]
	e.mu.Unlock()

	// Invariant: events observed strictly between pause() and resume() are
	// never uploaded. The fetch-window start already tries to avoid asking
	// for them, but a tracker that ignores the requested start and returns
	// them anyway must still be blocked here, at the authoritative point.
	if hasFloor && ev.Timestamp.Before(floor) {
		return transformResult{keep: false}
	}

	if seen && ev.Duration-prevDuration < 0.5 {
		return transformResult{keep: false}
	}

	btype := ev.BucketType
	if btype == synctypes.BucketAFK && ev.Status() == synctypes.StatusAFK {
		btype = synctypes.BucketBreak
	}

	data := make(map[string]any, len(ev.Data)+2)
	for k, v := range ev.Data {
		data[k] = v
	}

	if title := ev.Title(); title != "" {
		data["title"] = filter.ProcessTitle(app, title)
	}
	if rawURL := ev.URL(); rawURL != "" {
		if processed, ok := filter.ProcessURL(rawURL); ok {
			data["url"] = processed
			data["page_category"] = string(filter.InferPageCategory(rawURL, ev.Title()))
		} else {
			delete(data, "url")
		}
	}
	if projectID != nil {
		data["project_id"] = *projectID
	}

	ev.Data = data
	ev.BucketType = btype
	e.rememberSent(key, ev.Duration)
	return transformResult{event: ev, keep: true}
}

// rememberSent records key's duration in the dedupe cache, evicting the
// oldest entries once sentCacheLimit is exceeded.
func (e *Engine) rememberSent(key synctypes.Key, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.st.sentCache[key]; !exists {
		e.st.sentCacheOrder = append(e.st.sentCacheOrder, key)
	}
	e.st.sentCache[key] = duration

	for len(e.st.sentCacheOrder) > sentCacheLimit {
		oldest := e.st.sentCacheOrder[0]
		e.st.sentCacheOrder = e.st.sentCacheOrder[1:]
		delete(e.st.sentCache, oldest)
	}
}
