// Package orchestrator wires the sync engine, offline queue, tracker
// supervisor, remote client, scheduler, and OS event listener into a single
// long-running agent process: the lifecycle component of spec §4.10. It
// owns component construction order, the single-instance lock, scheduled
// job registration, and auth-expiry handling; everything UI-shaped (tray
// rendering, setup wizard, OS keystore) is an external collaborator the
// orchestrator only calls through the three small interfaces below.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/config"
	"github.com/betterqa-sync/agent-core/pkg/events"
	"github.com/betterqa-sync/agent-core/pkg/localapi"
	"github.com/betterqa-sync/agent-core/pkg/lockfile"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/offlinequeue"
	"github.com/betterqa-sync/agent-core/pkg/osevents"
	"github.com/betterqa-sync/agent-core/pkg/scheduler"
	"github.com/betterqa-sync/agent-core/pkg/supervisor"
	"github.com/betterqa-sync/agent-core/pkg/syncapi"
	"github.com/betterqa-sync/agent-core/pkg/syncengine"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
	"github.com/betterqa-sync/agent-core/pkg/trackerclient"
)

// TrayState is the user-visible status the orchestrator reports to its
// notification sink collaborator, per spec §7.
type TrayState string

const (
	TraySyncing      TrayState = "SYNCING"
	TrayQueued       TrayState = "QUEUED"
	TrayQueueWarning TrayState = "QUEUE_WARNING"
	TrayError        TrayState = "ERROR"
	TrayPaused       TrayState = "PAUSED"
	TrayPrivate      TrayState = "PRIVATE"
	TrayWaitingAuth  TrayState = "WAITING_AUTH"
	TrayStarting     TrayState = "STARTING"
)

// Credentials is the login token/device id pair the core consumes from an
// external keystore collaborator; the orchestrator never stores them
// itself beyond the in-memory syncapi.Client.
type Credentials struct {
	AccessToken string
	DeviceID    string
}

// CredentialStore is the external keystore collaborator (spec §1: "the
// core consumes from them only login token, device id...").
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, bool, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// SetupCollaborator runs the first-run wizard external to the core; the
// orchestrator only calls it once and persists completion.
type SetupCollaborator interface {
	RunSetup(ctx context.Context) error
}

// NotificationSink is the UI layer's tray/notification surface.
type NotificationSink interface {
	SetTrayState(state TrayState)
	Notify(title, body string)
}

// noopSink is used when the caller supplies no NotificationSink, so every
// internal call site can invoke it unconditionally.
type noopSink struct{}

func (noopSink) SetTrayState(TrayState) {}
func (noopSink) Notify(string, string)  {}

// actionEvent adapts a user action into pkg/events' Event interface so it
// can be dispatched through the internal notification bus.
type actionEvent struct {
	kind    string
	payload any
}

func (e actionEvent) GetEventType() string { return e.kind }
func (e actionEvent) GetPayload() any      { return e.payload }

// notifyHandler is the default events.EventHandler registered in New: it
// turns every dispatched user-action event into a tray notification so the
// sink does not need its own subscription wiring.
type notifyHandler struct {
	sink NotificationSink
}

func (h *notifyHandler) Handle(ctx context.Context, ev events.Event) error {
	if title, ok := ev.GetPayload().(string); ok {
		h.sink.Notify(ev.GetEventType(), title)
	}
	return nil
}

// ReauthFunc performs the interactive re-login flow and returns fresh
// credentials; invoked on a background goroutine whenever Sync surfaces an
// AuthError.
type ReauthFunc func(ctx context.Context) (Credentials, error)

// Deps bundles every constructor-time dependency. Fields left nil fall
// back to a usable default (noop sink, no setup collaborator).
type Deps struct {
	Product          string // used to derive default config/data directories
	ConfigPath       string
	QueuePath        string
	LockPath         string
	LocalTrackerURL  string
	LocalAPIAddr     string // loopback address for the local control API, e.g. "127.0.0.1:47811"
	RemoteBaseURL    string
	WebBaseURL       string
	AgentVersion     string
	Timezone         string
	DeviceName       string
	SupervisorConfig supervisor.Config
	ChildSpecs       []supervisor.ChildSpec

	Observability observability.Observability
	Credentials   CredentialStore
	Setup         SetupCollaborator
	Sink          NotificationSink
	Reauth        ReauthFunc
}

// Orchestrator is the lifecycle component: it owns every other component's
// construction and teardown order and is the only thing cmd/agent invokes.
type Orchestrator struct {
	deps Deps
	o11y observability.Observability

	lock   *lockfile.Lock
	cfg    *config.Store
	queue  *offlinequeue.Store
	remote *syncapi.Client
	super  *supervisor.Supervisor
	engine *syncengine.Engine
	sched    *scheduler.Scheduler
	events   events.EventDispatcher
	localAPI *localapi.Server

	sink      NotificationSink
	reminders *reminderTracker

	mu            sync.Mutex
	authenticated bool
	shuttingDown  bool
	shutdownOnce  sync.Once
	quit          chan struct{}
}

// New constructs every owned component but starts none of them; call Run
// to execute the full startup sequence.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Observability == nil {
		return nil, errors.New("orchestrator: Observability is required")
	}
	sink := deps.Sink
	if sink == nil {
		sink = noopSink{}
	}

	cfg, err := config.Open(deps.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load config: %w", err)
	}

	o := &Orchestrator{
		deps:      deps,
		o11y:      deps.Observability,
		cfg:       cfg,
		sink:      sink,
		reminders: newReminderTracker(),
		events:    events.NewEventDispatcher(),
		quit:      make(chan struct{}),
	}
	for _, kind := range []string{eventPaused, eventResumed, eventPrivateModeChanged, eventQueueWarning} {
		if err := o.events.Register(kind, &notifyHandler{sink: sink}); err != nil {
			return nil, fmt.Errorf("orchestrator: register notification handler: %w", err)
		}
	}
	return o, nil
}

// Event kinds dispatched through the internal notification bus; the
// payload is a human-readable message for NotificationSink.Notify.
const (
	eventPaused             = "agent.paused"
	eventResumed            = "agent.resumed"
	eventPrivateModeChanged = "agent.private_mode_changed"
	eventQueueWarning       = "agent.queue_warning"
)

func reachabilityTarget(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "http" {
		return u.Host + ":80"
	}
	return u.Host + ":443"
}

// Run executes the full startup sequence (spec §4.10 steps 1-8) and then
// blocks until ctx is canceled or Quit is called, at which point it runs
// Shutdown and returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.sink.SetTrayState(TrayStarting)

	lock, err := lockfile.Acquire(o.deps.LockPath)
	if err != nil {
		return fmt.Errorf("orchestrator: acquire single-instance lock: %w", err)
	}
	o.lock = lock
	defer o.Shutdown(context.Background())

	cfgVal := o.cfg.Get()

	queue, err := offlinequeue.Open(ctx, o.deps.QueuePath, o.o11y)
	if err != nil {
		return fmt.Errorf("orchestrator: open offline queue: %w", err)
	}
	o.queue = queue

	o.remote = syncapi.New(o.deps.RemoteBaseURL, o.o11y,
		syncapi.WithWebBaseURL(o.deps.WebBaseURL),
		syncapi.WithUserAgent("betterflow-sync-agent", o.deps.AgentVersion),
	)

	o.super = supervisor.New(o.deps.SupervisorConfig, o.o11y)

	tracker := trackerclient.New(o.deps.LocalTrackerURL, o.o11y)

	o.engine = syncengine.New(tracker, o.remote, o.queue, o.o11y, syncengine.Options{
		BatchSize:         cfgVal.BatchSize,
		HeartbeatInterval: cfgVal.HeartbeatInterval,
		MaxRetries:        cfgVal.MaxRetries,
		AgentVersion:      o.deps.AgentVersion,
		Timezone:          o.deps.Timezone,
		OnConfigUpdated:   o.onConfigUpdated,
	})

	if !cfgVal.SetupComplete && o.deps.Setup != nil {
		if err := o.deps.Setup.RunSetup(ctx); err != nil {
			return fmt.Errorf("orchestrator: setup: %w", err)
		}
		if _, err := o.cfg.Update(func(c *config.Config) { c.SetupComplete = true }); err != nil {
			return fmt.Errorf("orchestrator: persist setup completion: %w", err)
		}
	}

	o.tryAutoLogin(ctx)

	if err := o.super.Start(ctx, o.deps.ChildSpecs); err != nil {
		o.o11y.Logger().Error(ctx, "tracker supervisor start failed", observability.Error(err))
	}

	if o.isAuthenticated() {
		if err := o.onAuthenticated(ctx); err != nil {
			o.o11y.Logger().Error(ctx, "post-auth startup failed", observability.Error(err))
		}
	} else {
		o.sink.SetTrayState(TrayWaitingAuth)
	}

	listener := osevents.New(15*time.Second, osevents.NewReachabilityCache(reachabilityTarget(o.deps.RemoteBaseURL), 10*time.Second, 5*time.Second), o.osCallbacks())
	go listener.Run(ctx)

	if o.deps.LocalAPIAddr != "" {
		api, err := localapi.New(o.deps.LocalAPIAddr, o, o.o11y, o.deps.AgentVersion)
		if err != nil {
			return fmt.Errorf("orchestrator: build local api: %w", err)
		}
		o.localAPI = api
		go func() {
			if err := api.Run(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "local api server exited", observability.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-o.quit:
	}
	return nil
}

// Quit requests an orderly shutdown, equivalent to the tray's "Quit"
// action (spec §1's user-action set).
func (o *Orchestrator) Quit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-o.quit:
	default:
		close(o.quit)
	}
}

// Shutdown is idempotent: stop scheduler, end session (app_quit), close
// HTTP/queue resources, stop supervisor, release the lock — in that order.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.shuttingDown = true
		o.mu.Unlock()

		if o.sched != nil {
			o.sched.Stop(true)
		}
		if o.localAPI != nil {
			if err := o.localAPI.Shutdown(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "local api shutdown failed", observability.Error(err))
			}
		}
		if o.engine != nil {
			if err := o.engine.Shutdown(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "end session on shutdown failed", observability.Error(err))
			}
		}
		if o.queue != nil {
			if err := o.queue.Close(); err != nil {
				o.o11y.Logger().Warn(ctx, "close offline queue failed", observability.Error(err))
			}
		}
		if o.super != nil {
			if err := o.super.Stop(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "stop supervisor failed", observability.Error(err))
			}
		}
		if o.lock != nil {
			if err := o.lock.Release(); err != nil {
				o.o11y.Logger().Warn(ctx, "release single-instance lock failed", observability.Error(err))
			}
		}
	})
}

func (o *Orchestrator) isAuthenticated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authenticated
}

func (o *Orchestrator) setAuthenticated(v bool) {
	o.mu.Lock()
	o.authenticated = v
	o.mu.Unlock()
}

func (o *Orchestrator) tryAutoLogin(ctx context.Context) {
	if o.deps.Credentials == nil {
		return
	}
	creds, ok, err := o.deps.Credentials.Load(ctx)
	if err != nil {
		o.o11y.Logger().Warn(ctx, "credential load failed", observability.Error(err))
		return
	}
	if !ok {
		return
	}
	o.remote.SetToken(creds.AccessToken)
	o.remote.SetDeviceID(creds.DeviceID)
	o.setAuthenticated(true)
}

// onAuthenticated runs spec §4.10 step 7: fetch config/projects/categories,
// end any stale server-side session, then start the scheduler.
func (o *Orchestrator) onAuthenticated(ctx context.Context) error {
	if err := o.engine.FetchServerConfig(ctx); err != nil {
		o.o11y.Logger().Warn(ctx, "initial config fetch failed", observability.Error(err))
	}
	if _, err := o.remote.GetProjects(ctx); err != nil {
		o.o11y.Logger().Warn(ctx, "initial projects fetch failed", observability.Error(err))
	}
	if categories, err := o.remote.GetCategories(ctx); err != nil {
		o.o11y.Logger().Warn(ctx, "initial categories fetch failed", observability.Error(err))
	} else if len(categories) > 0 {
		mapping := make(map[string]string, len(categories))
		for _, c := range categories {
			mapping[c.AppName] = c.Category
		}
		if err := o.queue.SyncCategories(ctx, mapping); err != nil {
			o.o11y.Logger().Warn(ctx, "category cache sync failed", observability.Error(err))
		}
	}

	if status, err := o.remote.GetStatus(ctx); err == nil && status.ActiveSession != nil {
		if err := o.remote.EndSession(ctx, synctypes.ReasonCrashRecovery); err != nil {
			o.o11y.Logger().Warn(ctx, "crash-recovery session end failed", observability.Error(err))
		}
	}

	o.sched = scheduler.New(o.o11y)
	if err := o.registerJobs(o.cfg.Get()); err != nil {
		return fmt.Errorf("register scheduled jobs: %w", err)
	}
	return o.sched.Start()
}

// onConfigUpdated persists the server's sync interval, heartbeat interval
// and privacy policy into the local config and reschedules the "sync" job.
// ServerConfig carries no AFK timeout, so nothing is passed on to the
// supervisor.
func (o *Orchestrator) onConfigUpdated(ctx context.Context, serverCfg syncapi.ServerConfig) {
	if _, err := o.cfg.Update(func(c *config.Config) {
		if serverCfg.SyncIntervalSeconds > 0 {
			c.SyncIntervalSeconds = serverCfg.SyncIntervalSeconds
		}
		if serverCfg.HeartbeatInterval > 0 {
			c.HeartbeatInterval = serverCfg.HeartbeatInterval
		}
		c.Privacy = serverCfg.Privacy
	}); err != nil {
		o.o11y.Logger().Warn(ctx, "persist server config override failed", observability.Error(err))
	}
	if o.sched != nil {
		if updated := o.cfg.Get(); updated.SyncIntervalSeconds > 0 {
			_ = o.sched.Reschedule("sync", time.Duration(updated.SyncIntervalSeconds)*time.Second)
		}
	}
}

// runSyncCycle is the scheduler's "sync" job body: it runs one engine Sync
// cycle, updates tray state from the result, and drives re-authentication
// on AuthError without tearing down the scheduler (spec §4.10's
// auth-error handling note).
func (o *Orchestrator) runSyncCycle(ctx context.Context) error {
	o.sink.SetTrayState(TraySyncing)
	stats, err := o.engine.Sync(ctx)

	if err != nil && errors.Is(err, syncapi.ErrAuth) {
		o.setAuthenticated(false)
		o.sink.SetTrayState(TrayWaitingAuth)
		go o.reauthenticate(context.Background())
		return nil
	}

	status := o.engine.GetStatus()
	switch {
	case status.Paused:
		o.sink.SetTrayState(TrayPaused)
	case status.PrivateMode:
		o.sink.SetTrayState(TrayPrivate)
	case status.NetworkPaused:
		o.sink.SetTrayState(TrayQueued)
	case len(stats.Errors) > 0:
		o.sink.SetTrayState(TrayError)
	default:
		if near, qerr := o.queue.IsNearCapacity(ctx); qerr == nil && near {
			o.sink.SetTrayState(TrayQueueWarning)
			o.sink.Notify("Queue nearing capacity", "Events may be dropped if connectivity does not return soon.")
		} else if stats.Queued > 0 {
			o.sink.SetTrayState(TrayQueued)
		} else {
			o.sink.SetTrayState(TraySyncing)
		}
	}
	return err
}

// reauthenticate runs the interactive re-login flow (an external
// collaborator) on its own goroutine, per spec §4.10's auth-error note.
func (o *Orchestrator) reauthenticate(ctx context.Context) {
	if o.deps.Reauth == nil {
		return
	}
	creds, err := o.deps.Reauth(ctx)
	if err != nil {
		o.o11y.Logger().Error(ctx, "re-authentication failed", observability.Error(err))
		return
	}
	o.remote.SetToken(creds.AccessToken)
	o.remote.SetDeviceID(creds.DeviceID)
	if o.deps.Credentials != nil {
		if err := o.deps.Credentials.Save(ctx, creds); err != nil {
			o.o11y.Logger().Warn(ctx, "persist refreshed credentials failed", observability.Error(err))
		}
	}
	o.setAuthenticated(true)
	if err := o.onAuthenticated(ctx); err != nil {
		o.o11y.Logger().Error(ctx, "post-reauth startup failed", observability.Error(err))
	}
}

// Pause is the tray's "Pause" user action (spec §1).
func (o *Orchestrator) Pause(ctx context.Context) error {
	if err := o.engine.Pause(ctx); err != nil {
		return err
	}
	o.sink.SetTrayState(TrayPaused)
	_ = o.events.Dispatch(ctx, actionEvent{kind: eventPaused, payload: "Tracking paused"})
	return nil
}

// Resume is the tray's "Resume" user action; it also fires an immediate
// one-shot sync so the paused gap starts closing right away.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if err := o.engine.Resume(ctx); err != nil {
		return err
	}
	_ = o.events.Dispatch(ctx, actionEvent{kind: eventResumed, payload: "Tracking resumed"})
	if o.sched != nil {
		_ = o.sched.AddOnce("resume-sync", 0, o.runSyncCycle, true)
	}
	return nil
}

// SetPrivateMode is the tray's "Private time" toggle.
func (o *Orchestrator) SetPrivateMode(ctx context.Context, enabled bool) error {
	if err := o.engine.SetPrivateMode(ctx, enabled); err != nil {
		return err
	}
	if enabled {
		o.sink.SetTrayState(TrayPrivate)
	}
	_ = o.events.Dispatch(ctx, actionEvent{kind: eventPrivateModeChanged, payload: fmt.Sprintf("Private time %v", enabled)})
	return nil
}

// SetCurrentProject is the tray's project picker action.
func (o *Orchestrator) SetCurrentProject(projectID *string) {
	o.engine.SetCurrentProject(projectID)
}

// Status reports the engine's current mode for the local HTTP API.
func (o *Orchestrator) Status() localapi.StatusView {
	s := o.engine.GetStatus()
	return localapi.StatusView{
		Paused:         s.Paused,
		NetworkPaused:  s.NetworkPaused,
		PrivateMode:    s.PrivateMode,
		SessionActive:  s.SessionActive,
		CurrentProject: s.CurrentProject,
	}
}

// osCallbacks maps OS power/network events onto engine and scheduler
// actions, per spec §6.2's event-to-action table.
func (o *Orchestrator) osCallbacks() osevents.Callbacks {
	ctx := context.Background()
	return osevents.Callbacks{
		OnSleep: func() {
			o.sink.SetTrayState(TrayPaused)
			if err := o.engine.Pause(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "pause on sleep failed", observability.Error(err))
			}
		},
		OnWake: func() {
			if err := o.engine.Resume(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "resume on wake failed", observability.Error(err))
				return
			}
			if o.sched != nil {
				_ = o.sched.AddOnce("wake-sync", 0, o.runSyncCycle, true)
			}
		},
		OnScreenLock: func() {
			o.sink.SetTrayState(TrayPaused)
			if err := o.engine.Pause(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "pause on screen lock failed", observability.Error(err))
			}
		},
		OnScreenUnlock: func() {
			if err := o.engine.Resume(ctx); err != nil {
				o.o11y.Logger().Warn(ctx, "resume on screen unlock failed", observability.Error(err))
				return
			}
			if o.sched != nil {
				_ = o.sched.AddOnce("unlock-sync", 0, o.runSyncCycle, true)
			}
		},
		OnShutdown: func() {
			o.Quit()
		},
		OnNetworkChange: func(online bool) {
			o.engine.SetNetworkPaused(!online)
			if online {
				o.sink.SetTrayState(TraySyncing)
				if o.sched != nil {
					_ = o.sched.AddOnce("network-restored-sync", 0, o.runSyncCycle, true)
				}
			} else {
				o.sink.SetTrayState(TrayQueued)
			}
		},
	}
}

// registerJobs installs the scheduler jobs spec §4.8 requires: the sync
// cycle at the configured cadence, and the lower-frequency housekeeping
// jobs that keep cached server state fresh.
func (o *Orchestrator) registerJobs(cfg config.Config) error {
	syncInterval := time.Duration(cfg.SyncIntervalSeconds) * time.Second
	if syncInterval <= 0 {
		syncInterval = 30 * time.Second
	}
	if err := o.sched.Add("sync", syncInterval, o.runSyncCycle); err != nil {
		return err
	}
	if err := o.sched.Add("queue_expire", 24*time.Hour, o.jobQueueExpire); err != nil {
		return err
	}
	if err := o.sched.Add("category_refresh", 6*time.Hour, o.jobCategoryRefresh); err != nil {
		return err
	}
	if err := o.sched.Add("trends_refresh", 30*time.Minute, o.jobTrendsRefresh); err != nil {
		return err
	}
	if err := o.sched.Add("tray_time_refresh", 60*time.Second, o.jobTrayTimeRefresh); err != nil {
		return err
	}
	if err := o.sched.Add("reminder_check", 60*time.Second, o.jobReminderCheck); err != nil {
		return err
	}
	return nil
}

// jobTrayTimeRefresh pulls today's tracked-time total so the tray's "time
// today" readout stays live between sync cycles, independent of the sync
// interval.
func (o *Orchestrator) jobTrayTimeRefresh(ctx context.Context) error {
	status, err := o.remote.GetStatus(ctx)
	if err != nil {
		return err
	}
	o.sink.Notify("today_total_seconds", fmt.Sprintf("%.0f", status.TodaySummary.TotalSeconds))
	return nil
}

// jobReminderCheck evaluates the break and private-mode notification
// timers (spec §4.8's reminder_check job, §7's "OS notifications for
// reminders") against the engine's current mode. Tracking is considered
// active only while the engine is actually uploading activity: a session
// in progress, not paused, not in private mode, and not network-paused.
func (o *Orchestrator) jobReminderCheck(ctx context.Context) error {
	status := o.engine.GetStatus()
	tracking := status.SessionActive && !status.Paused && !status.PrivateMode && !status.NetworkPaused
	o.reminders.observe(o.cfg.Get().Reminders, tracking, status.PrivateMode, o.sink)
	return nil
}

// jobQueueExpire drops offline-queue rows older than the configured expiry
// age, so a persistently offline device does not grow its queue forever.
func (o *Orchestrator) jobQueueExpire(ctx context.Context) error {
	cfg := o.cfg.Get()
	maxAge := time.Duration(cfg.ExpiryAgeDays) * 24 * time.Hour
	if maxAge <= 0 {
		return nil
	}
	_, err := o.queue.ExpireOlderThan(ctx, maxAge)
	return err
}

// jobCategoryRefresh re-pulls the app->category mapping so locally cached
// categorization stays in sync with server-side edits.
func (o *Orchestrator) jobCategoryRefresh(ctx context.Context) error {
	categories, err := o.remote.GetCategories(ctx)
	if err != nil {
		return err
	}
	mapping := make(map[string]string, len(categories))
	for _, c := range categories {
		mapping[c.AppName] = c.Category
	}
	return o.queue.SyncCategories(ctx, mapping)
}

// jobTrendsRefresh just warms the remote's trends cache; the agent itself
// has no local consumer of the result today, but keeping the call scheduled
// matches what the tray's trends view expects to already be fresh.
func (o *Orchestrator) jobTrendsRefresh(ctx context.Context) error {
	_, err := o.remote.GetTrends(ctx)
	return err
}
