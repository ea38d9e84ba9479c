// Package supervisor owns the tracker subprocess fleet: discovery/download,
// ordered startup (data service first, watchers in parallel), health,
// crash auto-restart, stall detection, and dynamic AFK-timeout reconfig.
// Its Start/Shutdown/Health shape with context-bounded waits generalizes
// from one supervised process to N child OS processes, each tracked
// independently.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/logger"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/trackerclient"
)

const (
	// StartupTimeout bounds how long Start waits for the data service's
	// /info endpoint to respond before declaring startup failed.
	StartupTimeout = 10 * time.Second
	// ShutdownTimeout is the deadline of the context Stop passes to each
	// child's Stop. The escalation to a hard kill is timed by process.go's
	// killGrace, which Child.Stop applies regardless of this deadline.
	ShutdownTimeout = 10 * time.Second
	// StaleThreshold is the default age, in seconds, past which the window
	// watcher's newest event makes Supervisor consider it stalled.
	StaleThreshold = 600 * time.Second
)

// Config configures a Supervisor.
type Config struct {
	PersistentDir   string
	DevelopmentDir  string
	BundleDir       string
	DownloadURL     string
	DataServiceAddr string // host:port the data service listens on
	DataServiceAPI  string // base URL of the data service's HTTP API
	AFKTimeoutArg   string // flag name passed to the AFK watcher, e.g. "--timeout"
}

// Supervisor manages the data service and its watcher subprocesses.
type Supervisor struct {
	cfg  Config
	o11y observability.Observability
	log  logger.Logger
	tc   *trackerclient.Client

	mu       sync.Mutex
	children map[string]*Child
	external bool // true if the data service was already running at Start
	afkArg   string
}

// New constructs a Supervisor. The specs later passed to Start must include
// exactly one entry named "data_service"; the rest are started in parallel
// after it.
func New(cfg Config, o11y observability.Observability) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		o11y:     o11y,
		log:      logger.NewLogger(),
		tc:       trackerclient.New(cfg.DataServiceAPI, o11y),
		children: make(map[string]*Child),
	}
}

// Start resolves the tracker install directory (discovering/downloading if
// necessary), then launches the data service (unless one is already
// reachable on DataServiceAddr, in which case it marks "external instance"
// and only launches missing watchers) and every watcher in specs.
func (s *Supervisor) Start(ctx context.Context, specs []ChildSpec) error {
	var required []string
	for _, spec := range specs {
		required = append(required, spec.Bin)
	}

	dir, err := Discover(ctx, s.o11y, s.cfg.PersistentDir, s.cfg.DevelopmentDir, s.cfg.BundleDir, s.cfg.DownloadURL, required)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.external = isReachable(s.cfg.DataServiceAddr, time.Second)
	for _, spec := range specs {
		s.children[spec.Name] = newChild(spec, dir, s.log, s.o11y)
	}
	s.mu.Unlock()

	if s.external {
		s.o11y.Logger().Info(ctx, "data service already running externally, skipping launch",
			observability.String("addr", s.cfg.DataServiceAddr))
	} else if err := s.startDataService(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	s.mu.Lock()
	for name, child := range s.children {
		if name == "data_service" {
			continue
		}
		wg.Add(1)
		go func(child *Child) {
			defer wg.Done()
			if err := child.Start(nil); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(child)
	}
	s.mu.Unlock()
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("supervisor: %d watcher(s) failed to start: %v", len(errs), errs[0])
	}
	return nil
}

func (s *Supervisor) startDataService(ctx context.Context) error {
	s.mu.Lock()
	child := s.children["data_service"]
	s.mu.Unlock()
	if child == nil {
		return fmt.Errorf("supervisor: no data_service child registered")
	}

	if err := child.Start(nil); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-child.Exited():
			return fmt.Errorf("supervisor: data service exited during startup")
		case <-ctx.Done():
			return fmt.Errorf("supervisor: data service did not become ready within %s", StartupTimeout)
		case <-ticker.C:
			if s.tc.IsRunning(ctx) {
				return nil
			}
		}
	}
}

// Stop terminates watchers first, then the data service (unless it is an
// external instance this Supervisor never launched), escalating to a hard
// kill per child after killGrace.
func (s *Supervisor) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	var watchers []*Child
	dataService := s.children["data_service"]
	external := s.external
	for name, child := range s.children {
		if name != "data_service" {
			watchers = append(watchers, child)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, child := range watchers {
		wg.Add(1)
		go func(c *Child) {
			defer wg.Done()
			_ = c.Stop(ctx)
		}(child)
	}
	wg.Wait()

	if dataService != nil && !external {
		return dataService.Stop(ctx)
	}
	return nil
}

// CheckHealth reports true iff the data service is an external instance
// whose address is reachable, or, when it is managed, every child this
// Supervisor holds is alive. Watchers are not checked in external mode.
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	s.mu.Lock()
	external := s.external
	children := make([]*Child, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.mu.Unlock()

	if external {
		return isReachable(s.cfg.DataServiceAddr, time.Second)
	}
	for _, c := range children {
		if !c.Alive() {
			return false
		}
	}
	return true
}

// RestartIfNeeded relaunches any exited child and, for the window watcher,
// checks the tracker API for staleness: if the
// newest window event's end time is older than staleThreshold, the watcher
// is terminated and restarted even though its process is still alive.
func (s *Supervisor) RestartIfNeeded(ctx context.Context, windowWatcherName string, staleThreshold time.Duration) error {
	s.mu.Lock()
	children := make(map[string]*Child, len(s.children))
	for name, c := range s.children {
		children[name] = c
	}
	external := s.external
	s.mu.Unlock()

	for name, child := range children {
		if name == "data_service" && external {
			continue
		}
		if !child.Alive() {
			s.o11y.Logger().Warn(ctx, "restarting crashed tracker child", observability.String("child", name))
			if err := child.Start(nil); err != nil {
				s.o11y.Logger().Error(ctx, "failed to restart tracker child",
					observability.String("child", name), observability.Error(err))
			}
		}
	}

	windowChild, ok := children[windowWatcherName]
	if !ok || !windowChild.Alive() {
		return nil
	}
	if stale, err := s.windowWatcherStalled(ctx, staleThreshold); err != nil {
		s.o11y.Logger().Warn(ctx, "stall check failed", observability.Error(err))
	} else if stale {
		s.o11y.Logger().Warn(ctx, "window watcher stalled, restarting", observability.String("child", windowWatcherName))
		_ = windowChild.Stop(ctx)
		return windowChild.Start(nil)
	}
	return nil
}

func (s *Supervisor) windowWatcherStalled(ctx context.Context, staleThreshold time.Duration) (bool, error) {
	buckets, err := s.tc.GetWindowBuckets(ctx)
	if err != nil {
		return false, err
	}
	var newest time.Time
	for _, b := range buckets {
		events, err := s.tc.GetEvents(ctx, b.ID, nil, nil, 1)
		if err != nil {
			continue
		}
		for _, e := range events {
			if e.End().After(newest) {
				newest = e.End()
			}
		}
	}
	if newest.IsZero() {
		return false, nil
	}
	return time.Since(newest) > staleThreshold, nil
}

// SetAFKTimeout restarts the AFK watcher with a new --timeout argument if it
// is currently running; a no-op if it is not.
func (s *Supervisor) SetAFKTimeout(ctx context.Context, afkWatcherName string, seconds int) error {
	s.mu.Lock()
	child, ok := s.children[afkWatcherName]
	s.mu.Unlock()
	if !ok || !child.Alive() {
		return nil
	}
	if err := child.Stop(ctx); err != nil {
		return err
	}
	args := append(append([]string{}, child.spec.Args...), s.cfg.AFKTimeoutArg, fmt.Sprint(seconds))
	return child.Start(args)
}

func isReachable(addr string, timeout time.Duration) bool {
	if addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
