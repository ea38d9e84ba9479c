// Command agent is the sync agent's entrypoint: it parses flags, builds an
// observability provider, and runs the lifecycle orchestrator until an OS
// signal or the orchestrator's own quit channel fires. Everything UI-shaped
// (tray icon, setup wizard, OS keystore) is intentionally absent — this
// binary exercises only the core described in DESIGN.md and leaves the
// orchestrator's external collaborators (Credentials, Setup, Sink, Reauth
// in orchestrator.Deps) unset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/config"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/observability/noop"
	"github.com/betterqa-sync/agent-core/pkg/observability/otel"
	"github.com/betterqa-sync/agent-core/pkg/orchestrator"
	"github.com/betterqa-sync/agent-core/pkg/supervisor"
)

const product = "betterflow-sync-agent"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		remoteBaseURL   = flag.String("remote-url", "https://api.betterflow.example.com/api/v1/sync", "remote sync API base URL")
		webBaseURL      = flag.String("web-url", "https://app.betterflow.example.com", "browser OAuth web base URL")
		localTrackerURL = flag.String("tracker-url", "http://localhost:5600/api/0", "local tracker API base URL")
		localAPIAddr    = flag.String("local-api-addr", "127.0.0.1:47811", "loopback address for the local control API")
		agentVersion    = flag.String("agent-version", "0.1.0", "reported agent version")
		deviceName      = flag.String("device-name", "", "device name reported during OAuth code exchange")
		otlpEndpoint    = flag.String("otlp-endpoint", "", "OTLP collector endpoint; empty disables telemetry export")
		configDir       = flag.String("config-dir", "", "override the per-user config directory")
		dataDir         = flag.String("data-dir", "", "override the per-user data directory")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	o11y, shutdownO11y, err := buildObservability(ctx, *otlpEndpoint, *agentVersion)
	if err != nil {
		return fmt.Errorf("build observability provider: %w", err)
	}
	defer shutdownO11y(context.Background())

	cfgDir := *configDir
	if cfgDir == "" {
		cfgDir, err = config.DefaultConfigDir(product)
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
	}
	dDir := *dataDir
	if dDir == "" {
		dDir, err = config.DefaultDataDir(product)
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
	}

	deps := orchestrator.Deps{
		Product:         product,
		ConfigPath:      filepath.Join(cfgDir, "config.json"),
		QueuePath:       filepath.Join(dDir, "offline_queue.db"),
		LockPath:        filepath.Join(cfgDir, ".lock"),
		LocalTrackerURL: *localTrackerURL,
		LocalAPIAddr:    *localAPIAddr,
		RemoteBaseURL:   *remoteBaseURL,
		WebBaseURL:      *webBaseURL,
		AgentVersion:    *agentVersion,
		Timezone:        localTimezone(),
		DeviceName:      *deviceName,
		SupervisorConfig: supervisor.Config{
			PersistentDir:   filepath.Join(dDir, "trackers"),
			DataServiceAddr: "127.0.0.1:5600",
			DataServiceAPI:  *localTrackerURL,
			AFKTimeoutArg:   "--timeout",
		},
		ChildSpecs: []supervisor.ChildSpec{
			{Name: "data_service", Bin: "aw-server"},
			{Name: "window_watcher", Bin: "aw-watcher-window"},
			{Name: "afk_watcher", Bin: "aw-watcher-afk"},
		},
		Observability: o11y,
	}

	orch, err := orchestrator.New(deps)
	if err != nil {
		return fmt.Errorf("construct orchestrator: %w", err)
	}
	return orch.Run(ctx)
}

// buildObservability constructs an OTLP-backed provider when endpoint is
// non-empty, falling back to the no-op provider otherwise so the agent
// remains fully runnable with zero external collector dependencies.
func buildObservability(ctx context.Context, endpoint, version string) (observability.Observability, func(context.Context) error, error) {
	if endpoint == "" {
		return noop.NewProvider(), func(context.Context) error { return nil }, nil
	}
	cfg := otel.DefaultConfig(product)
	cfg.ServiceVersion = version
	cfg.OTLPEndpoint = endpoint
	provider, err := otel.NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return provider, provider.Shutdown, nil
}

func localTimezone() string {
	name, _ := time.Now().Zone()
	return name
}
