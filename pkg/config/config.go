// Package config loads, saves, and migrates the agent's persisted
// configuration, and merges server-pushed overrides on top of the locally
// stored defaults, round-tripping to disk as JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

// schemaVersion is bumped whenever a migration step is added to Load.
const schemaVersion = 3

// ReminderSettings controls the break and private-mode notification
// cadence that pkg/orchestrator's reminder_check job evaluates.
type ReminderSettings struct {
	BreakRemindersEnabled   bool `json:"break_reminders_enabled"`
	BreakIntervalHours      int  `json:"break_interval_hours"`
	PrivateRemindersEnabled bool `json:"private_reminders_enabled"`
	PrivateIntervalMinutes  int  `json:"private_interval_minutes"`
}

// Config is the agent's full persisted configuration.
type Config struct {
	SchemaVersion int `json:"schema_version"`

	ServerBaseURL string `json:"server_base_url"`
	WebBaseURL    string `json:"web_base_url"`
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name"`
	AgentVersion  string `json:"agent_version"`

	SyncIntervalSeconds int `json:"sync_interval_seconds"`
	HeartbeatInterval   int `json:"heartbeat_interval"`
	BatchSize           int `json:"batch_size"`

	MaxQueueSize   int `json:"max_queue_size"`
	MaxRetries     int `json:"max_retries"`
	ExpiryAgeDays  int `json:"expiry_age_days"`
	StaleThreshold int `json:"stale_threshold_seconds"`

	AFKTimeoutSeconds int `json:"afk_timeout_seconds"`

	Reminders ReminderSettings `json:"reminders"`

	Privacy synctypes.PrivacyPolicy `json:"privacy"`

	CurrentProjectID string `json:"current_project_id,omitempty"`

	SetupComplete bool `json:"setup_complete"`

	// ServerConfigFetchedAt records the last successful fetchServerConfig,
	// so the orchestrator can skip a redundant fetch immediately after load.
	ServerConfigFetchedAt time.Time `json:"server_config_fetched_at,omitempty"`
}

// Default returns the built-in configuration applied before any config.json
// exists and before the first server config fetch succeeds.
func Default() Config {
	return Config{
		SchemaVersion:       schemaVersion,
		SyncIntervalSeconds: 60,
		HeartbeatInterval:   10,
		BatchSize:           100,
		MaxQueueSize:        50000,
		MaxRetries:          5,
		ExpiryAgeDays:       7,
		StaleThreshold:      600,
		AFKTimeoutSeconds:   180,
		Reminders: ReminderSettings{
			BreakRemindersEnabled:   true,
			BreakIntervalHours:      2,
			PrivateRemindersEnabled: true,
			PrivateIntervalMinutes:  20,
		},
		Privacy: synctypes.DefaultPrivacyPolicy(),
	}
}

// Store owns the on-disk config.json and serializes reads/writes with a
// mutex rather than relying on a package-level singleton.
type Store struct {
	path string
	mu   sync.Mutex
	cfg  Config
}

// Open loads path if it exists (migrating forward any older schema), or
// seeds it with Default and persists it if it does not.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.cfg = Default()
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg = migrate(cfg)
	s.cfg = cfg
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// migrate upgrades an older on-disk schema to schemaVersion, filling in any
// field introduced since that revision with its Default() value.
func migrate(cfg Config) Config {
	if cfg.SchemaVersion >= schemaVersion {
		return cfg
	}
	base := Default()
	if cfg.SchemaVersion < 1 {
		// Revision 1 introduced AFKTimeoutSeconds; 0 would otherwise disable
		// AFK detection entirely when read by the supervisor.
		if cfg.AFKTimeoutSeconds == 0 {
			cfg.AFKTimeoutSeconds = base.AFKTimeoutSeconds
		}
	}
	if cfg.SchemaVersion < 2 {
		// Revision 2 introduced StaleThreshold for tracker-stall detection.
		if cfg.StaleThreshold == 0 {
			cfg.StaleThreshold = base.StaleThreshold
		}
	}
	if cfg.SchemaVersion < 3 {
		// Revision 3 introduced Reminders; a zero-value struct would disable
		// both notification kinds and zero out their intervals.
		if cfg.Reminders == (ReminderSettings{}) {
			cfg.Reminders = base.Reminders
		}
	}
	cfg.SchemaVersion = schemaVersion
	return cfg
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Save persists cfg as the new current configuration.
func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.SchemaVersion = schemaVersion
	s.cfg = cfg
	return s.saveLocked()
}

// Update applies fn to the stored config in place and persists the result.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
	s.cfg.SchemaVersion = schemaVersion
	if err := s.saveLocked(); err != nil {
		return Config{}, err
	}
	return s.cfg, nil
}

// MergeServerOverrides applies a remote ServerConfig payload on top of the
// current config: sync cadence and privacy policy are server-owned once
// GET /config succeeds.
func (s *Store) MergeServerOverrides(syncIntervalSeconds, heartbeatInterval int, privacy synctypes.PrivacyPolicy) error {
	_, err := s.Update(func(cfg *Config) {
		if syncIntervalSeconds > 0 {
			cfg.SyncIntervalSeconds = syncIntervalSeconds
		}
		if heartbeatInterval > 0 {
			cfg.HeartbeatInterval = heartbeatInterval
		}
		cfg.Privacy = privacy
		cfg.ServerConfigFetchedAt = time.Now().UTC()
	})
	return err
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	return nil
}

// DefaultConfigDir returns the per-user config directory for this agent,
// following os.UserConfigDir with a product-specific subdirectory.
func DefaultConfigDir(product string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(base, product), nil
}

// DefaultDataDir returns the per-user data directory for this agent's
// durable state (offline_queue.db, downloaded tracker binaries).
func DefaultDataDir(product string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user cache dir: %w", err)
	}
	return filepath.Join(base, product), nil
}
