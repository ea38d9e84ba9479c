// Package scheduler registers named fixed-interval and one-shot jobs,
// dispatching each through github.com/robfig/cron/v3 by translating a
// time.Duration into an "@every" spec string, or via time.AfterFunc for a
// single delayed firing.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/betterqa-sync/agent-core/pkg/observability"
)

// Func is the work a registered job performs. ctx is context.Background();
// Stop does not cancel it.
type Func func(ctx context.Context) error

// Scheduler runs named jobs on their own schedule, one worker per firing.
// A second invocation of a still-running job is skipped, logging the
// collision, so a slow sync cycle never queues up a backlog of overlapping
// runs.
type Scheduler struct {
	o11y observability.Observability
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]*jobEntry
	started bool
}

type jobEntry struct {
	id      string
	fn      Func
	every   time.Duration
	cronID  cron.EntryID
	running sync.Mutex
	once    bool
}

// New constructs a Scheduler. Jobs may be added before or after Start.
func New(o11y observability.Observability) *Scheduler {
	return &Scheduler{
		o11y: o11y,
		cron: cron.New(cron.WithChain(cron.Recover(cronLoggerAdapter{o11y}))),
		entries: make(map[string]*jobEntry),
	}
}

// Add registers a fixed-interval job, replacing any existing job with the
// same id. The job is scheduled immediately if the scheduler has started.
func (s *Scheduler) Add(id string, every time.Duration, fn Func) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: job %q: interval must be positive", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)

	entry := &jobEntry{id: id, fn: fn, every: every}
	s.entries[id] = entry
	if s.started {
		return s.scheduleLocked(entry)
	}
	return nil
}

// AddOnce registers a one-shot job that fires after delay and then
// unregisters itself. replaceExisting controls whether a pending one-shot
// job under the same id is replaced, or the call is a no-op when one is
// already pending.
func (s *Scheduler) AddOnce(id string, delay time.Duration, fn Func, replaceExisting bool) error {
	s.mu.Lock()
	if _, exists := s.entries[id]; exists && !replaceExisting {
		s.mu.Unlock()
		return nil
	}
	s.removeLocked(id)
	entry := &jobEntry{id: id, fn: fn, every: delay, once: true}
	s.entries[id] = entry
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}
	time.AfterFunc(delay, func() { s.runOnce(entry) })
	return nil
}

// Reschedule changes the interval of an existing fixed-interval job.
func (s *Scheduler) Reschedule(id string, every time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("scheduler: job %q not registered", id)
	}
	if entry.once {
		return fmt.Errorf("scheduler: job %q is one-shot, cannot reschedule", id)
	}
	if s.started {
		s.cron.Remove(entry.cronID)
	}
	entry.every = every
	if s.started {
		return s.scheduleLocked(entry)
	}
	return nil
}

// Remove unregisters a job; a currently running invocation is allowed to
// finish.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		if s.started && !entry.once {
			s.cron.Remove(entry.cronID)
		}
		delete(s.entries, id)
	}
}

// Start begins dispatching every currently registered fixed-interval job
// and arms any pending one-shot jobs. Jobs added after Start are scheduled
// immediately by Add/AddOnce.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	for _, entry := range s.entries {
		if entry.once {
			e := entry
			time.AfterFunc(e.every, func() { s.runOnce(e) })
			continue
		}
		if err := s.scheduleLocked(entry); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.started = true
	return nil
}

func (s *Scheduler) scheduleLocked(entry *jobEntry) error {
	spec := fmt.Sprintf("@every %s", entry.every.String())
	id, err := s.cron.AddFunc(spec, func() { s.runInterval(entry) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule job %q: %w", entry.id, err)
	}
	entry.cronID = id
	return nil
}

// Stop stops accepting new firings. If wait is true it blocks until every
// in-flight invocation returns; otherwise it returns immediately, leaving
// in-flight jobs to finish on their own goroutines.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	if wait {
		<-ctx.Done()
	}
}

func (s *Scheduler) runInterval(entry *jobEntry) {
	if !entry.running.TryLock() {
		s.o11y.Logger().Warn(context.Background(), "scheduler: skipping overlapping invocation",
			observability.String("job", entry.id))
		return
	}
	defer entry.running.Unlock()
	s.run(entry)
}

func (s *Scheduler) runOnce(entry *jobEntry) {
	s.mu.Lock()
	_, stillRegistered := s.entries[entry.id]
	if stillRegistered {
		delete(s.entries, entry.id)
	}
	s.mu.Unlock()
	if !stillRegistered {
		return
	}
	s.run(entry)
}

func (s *Scheduler) run(entry *jobEntry) {
	ctx := context.Background()
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scheduler: job %q panicked: %v", entry.id, r)
			}
		}()
		err = entry.fn(ctx)
	}()

	duration := time.Since(start)
	if err != nil {
		s.o11y.Logger().Error(ctx, "scheduler job failed",
			observability.String("job", entry.id),
			observability.String("duration", duration.String()),
			observability.Error(err))
		return
	}
	s.o11y.Logger().Debug(ctx, "scheduler job completed",
		observability.String("job", entry.id),
		observability.String("duration", duration.String()))
}

// cronLoggerAdapter routes robfig/cron's own panic-recovery logging through
// the agent's observability facade.
type cronLoggerAdapter struct {
	o11y observability.Observability
}

func (a cronLoggerAdapter) Info(msg string, keysAndValues ...any) {
	a.o11y.Logger().Info(context.Background(), msg, kvFields(keysAndValues)...)
}

func (a cronLoggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	fields := append(kvFields(keysAndValues), observability.Error(err))
	a.o11y.Logger().Error(context.Background(), msg, fields...)
}

func kvFields(kv []any) []observability.Field {
	fields := make([]observability.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, observability.Any(key, kv[i+1]))
	}
	return fields
}
