// Package synctypes holds the data model shared by the tracker client,
// privacy filter, offline queue, and sync engine: events, buckets,
// checkpoints, queued events, category mappings, and privacy policy.
package synctypes

import (
	"encoding/json"
	"time"
)

// BucketType classifies the producing watcher stream of an event.
type BucketType string

const (
	BucketWindow      BucketType = "window"
	BucketWeb         BucketType = "web"
	BucketAFK         BucketType = "afk"
	BucketInput       BucketType = "input"
	BucketBreak       BucketType = "break"
	BucketPrivateTime BucketType = "private_time"
)

// Legacy bucket-type aliases produced by different tracker server builds.
// aw-server-rust reports "aw-watcher-window"/"aw-watcher-afk"; aw-server
// (Python) reports "currentwindow"/"afkstatus".
const (
	rawWindow      = "currentwindow"
	rawWindowAlt   = "aw-watcher-window"
	rawAFK         = "afkstatus"
	rawAFKAlt      = "aw-watcher-afk"
	rawWeb         = "aw-watcher-web"
	rawInput       = "aw-watcher-input"
)

// NormalizeBucketType maps a raw tracker bucket type string (including
// legacy aliases) to the canonical BucketType used internally. The zero
// value is returned, with ok=false, for unrecognized types.
func NormalizeBucketType(raw string) (BucketType, bool) {
	switch raw {
	case rawWindow, rawWindowAlt:
		return BucketWindow, true
	case rawAFK, rawAFKAlt:
		return BucketAFK, true
	case rawWeb:
		return BucketWeb, true
	case rawInput:
		return BucketInput, true
	default:
		return "", false
	}
}

// AFKStatus values observed in afk-bucket event data.
const (
	StatusAFK    = "afk"
	StatusNotAFK = "not-afk"
)

// Event is a single observation from a tracker bucket. It is immutable
// once observed by the engine, though a still-open event may be re-read
// later with a larger Duration ("heartbeat extension").
type Event struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Duration   float64        `json:"duration"`
	BucketID   string         `json:"bucket_id"`
	BucketType BucketType     `json:"bucket_type"`
	Data       map[string]any `json:"data"`
}

// End returns the instant the event's observed interval ends.
func (e Event) End() time.Time {
	return e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second)))
}

// App returns the data.app field, if present.
func (e Event) App() string {
	return stringField(e.Data, "app")
}

// Title returns the data.title field, if present.
func (e Event) Title() string {
	return stringField(e.Data, "title")
}

// URL returns the data.url field, if present.
func (e Event) URL() string {
	return stringField(e.Data, "url")
}

// Status returns the data.status field, if present.
func (e Event) Status() string {
	return stringField(e.Data, "status")
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Key identifies an event uniquely within its bucket, for dedupe and
// upsert purposes on the remote side.
type Key struct {
	BucketID string
	ID       int64
}

// Bucket describes a named stream of events produced by one tracker watcher.
type Bucket struct {
	ID        string
	Type      string
	Client    string
	Hostname  string
	CreatedAt time.Time
}

// Checkpoint is the low-water mark for the next incremental fetch on a bucket.
type Checkpoint struct {
	BucketID          string
	LastEventTimestamp time.Time
	LastEventID       int64
	UpdatedAt         time.Time
}

// QueuedEvent is an event persisted to the offline queue after a failed
// upload. RowID defines FIFO order.
type QueuedEvent struct {
	RowID      int64
	EventBlob  []byte
	CreatedAt  time.Time
	RetryCount int
}

// CategoryMapping caches an app's category tag, as pushed by the remote.
type CategoryMapping struct {
	AppName   string    `json:"app_name"`
	Category  string    `json:"category"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PrivacyPolicy is a declarative, per-device policy pushed by the remote
// and applied client-side before any network I/O. The remote serializes
// TitleAllowlist and ExcludeApps as JSON string arrays rather than objects,
// so the set-typed fields round-trip through a custom (Un)MarshalJSON.
type PrivacyPolicy struct {
	HashTitles          bool
	TitleAllowlist      map[string]struct{}
	DomainOnlyURLs      bool
	CollectFullURLs     bool
	CollectPageCategory bool
	ExcludeApps         map[string]struct{}
}

type privacyPolicyWire struct {
	HashTitles          bool     `json:"hash_titles"`
	TitleAllowlist      []string `json:"title_allowlist"`
	DomainOnlyURLs      bool     `json:"domain_only_urls"`
	CollectFullURLs     bool     `json:"collect_full_urls"`
	CollectPageCategory bool     `json:"collect_page_category"`
	ExcludeApps         []string `json:"exclude_apps"`
}

func stringSetToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func stringSliceToSet(slice []string) map[string]struct{} {
	out := make(map[string]struct{}, len(slice))
	for _, s := range slice {
		out[s] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set-typed fields as JSON arrays.
func (p PrivacyPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(privacyPolicyWire{
		HashTitles:          p.HashTitles,
		TitleAllowlist:      stringSetToSlice(p.TitleAllowlist),
		DomainOnlyURLs:      p.DomainOnlyURLs,
		CollectFullURLs:     p.CollectFullURLs,
		CollectPageCategory: p.CollectPageCategory,
		ExcludeApps:         stringSetToSlice(p.ExcludeApps),
	})
}

// UnmarshalJSON decodes JSON arrays into the set-typed fields.
func (p *PrivacyPolicy) UnmarshalJSON(data []byte) error {
	var w privacyPolicyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.HashTitles = w.HashTitles
	p.TitleAllowlist = stringSliceToSet(w.TitleAllowlist)
	p.DomainOnlyURLs = w.DomainOnlyURLs
	p.CollectFullURLs = w.CollectFullURLs
	p.CollectPageCategory = w.CollectPageCategory
	p.ExcludeApps = stringSliceToSet(w.ExcludeApps)
	return nil
}

// DefaultPrivacyPolicy is a conservative default applied before the first
// server config fetch succeeds.
func DefaultPrivacyPolicy() PrivacyPolicy {
	return PrivacyPolicy{
		HashTitles:      true,
		TitleAllowlist:  map[string]struct{}{},
		DomainOnlyURLs:  true,
		CollectFullURLs: false,
		ExcludeApps:     map[string]struct{}{},
	}
}

// SessionEndReason classifies why a tracked session ended.
type SessionEndReason string

const (
	ReasonAppQuit          SessionEndReason = "app_quit"
	ReasonUserLogout       SessionEndReason = "user_logout"
	ReasonIdleTimeout      SessionEndReason = "idle_timeout"
	ReasonCrashRecovery    SessionEndReason = "crash_recovery"
	ReasonPrivateTime      SessionEndReason = "private_time"
	ReasonServerPause      SessionEndReason = "server_pause"
	ReasonServerDeregister SessionEndReason = "server_deregister"
)

// SyncStats summarizes the outcome of one sync() cycle.
type SyncStats struct {
	Fetched    int
	Filtered   int
	Sent       int
	Queued     int
	Buckets    int
	GapsFilled int
	Errors     []string
	Success    bool
}
