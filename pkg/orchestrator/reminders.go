package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/config"
)

// reminderTracker fires break and private-mode OS notifications on a
// periodic poll, grounded on the original agent's ReminderManager
// (original_source/src/reminders.py): it tracks how long the engine has
// been continuously tracking (for break reminders) and how long private
// mode has been continuously on (for private-time reminders), notifying
// at most once per configured interval for each.
//
// Unlike the original's dedicated on_tracking_started/stopped callbacks,
// this tracker detects the same edges by comparing the engine's reported
// mode against its own last-seen state each time observe is called, since
// jobReminderCheck already polls the engine every 60 s (spec §4.8).
type reminderTracker struct {
	mu sync.Mutex

	trackingActive        bool
	workStart             time.Time
	lastBreakNotification time.Time

	privateActive           bool
	privateStart            time.Time
	lastPrivateNotification time.Time
}

func newReminderTracker() *reminderTracker {
	return &reminderTracker{}
}

// observe updates the tracker's edge state from the engine's current mode
// and fires any notification whose interval has elapsed through sink.
func (r *reminderTracker) observe(cfg config.ReminderSettings, tracking, private bool, sink NotificationSink) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if tracking && !r.trackingActive {
		r.workStart = now
		r.lastBreakNotification = time.Time{}
	}
	r.trackingActive = tracking

	if private && !r.privateActive {
		r.privateStart = now
		r.lastPrivateNotification = time.Time{}
	}
	r.privateActive = private

	if cfg.BreakRemindersEnabled && r.trackingActive && cfg.BreakIntervalHours > 0 {
		interval := time.Duration(cfg.BreakIntervalHours) * time.Hour
		elapsed := now.Sub(r.workStart)
		ref := r.lastBreakNotification
		if ref.IsZero() {
			ref = r.workStart
		}
		if elapsed >= interval && now.Sub(ref) >= interval {
			hours := int(elapsed.Hours())
			sink.Notify("Time for a Break", fmt.Sprintf("You've been working for %dh — take a short break!", hours))
			r.lastBreakNotification = now
		}
	}

	if cfg.PrivateRemindersEnabled && r.privateActive && cfg.PrivateIntervalMinutes > 0 {
		interval := time.Duration(cfg.PrivateIntervalMinutes) * time.Minute
		elapsed := now.Sub(r.privateStart)
		ref := r.lastPrivateNotification
		if ref.IsZero() {
			ref = r.privateStart
		}
		if elapsed >= interval && now.Sub(ref) >= interval {
			minutes := int(elapsed.Minutes())
			sink.Notify("Private Time Still Active", fmt.Sprintf("Private mode has been on for %dm — tracking is paused.", minutes))
			r.lastPrivateNotification = now
		}
	}
}
