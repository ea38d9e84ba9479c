// Package trackerclient reads buckets and events from the local tracker's
// HTTP API: GET /info, /buckets/, /buckets/{id}/events.
package trackerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/httpclient"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

const defaultTimeout = 10 * time.Second

// Client talks to the local tracker server, normally on localhost.
type Client struct {
	baseURL    string
	httpClient httpclient.HTTPClient
	o11y       observability.Observability
}

// New constructs a Client against the tracker's base URL, e.g.
// "http://localhost:5600/api/0".
func New(baseURL string, o11y observability.Observability) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.NewHTTPClientWithTimeout(defaultTimeout),
		o11y:       o11y,
	}
}

type infoResponse struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
}

// IsRunning reports whether the tracker responds on /info within the
// client timeout.
func (c *Client) IsRunning(ctx context.Context) bool {
	var info infoResponse
	return c.get(ctx, "/info", &info) == nil
}

type bucketWire struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
	Created  string `json:"created"`
}

// buckets fetches and normalizes every bucket the tracker reports, keyed by
// raw bucket id.
func (c *Client) buckets(ctx context.Context) (map[string]synctypes.Bucket, error) {
	var wire map[string]bucketWire
	if err := c.get(ctx, "/buckets/", &wire); err != nil {
		return nil, fmt.Errorf("trackerclient: list buckets: %w", err)
	}
	out := make(map[string]synctypes.Bucket, len(wire))
	for id, b := range wire {
		created, _ := parseTimestamp(b.Created)
		out[id] = synctypes.Bucket{
			ID:        b.ID,
			Type:      b.Type,
			Client:    b.Client,
			Hostname:  b.Hostname,
			CreatedAt: created,
		}
	}
	return out, nil
}

// bucketsByType returns every bucket whose normalized type matches want.
func (c *Client) bucketsByType(ctx context.Context, want synctypes.BucketType) ([]synctypes.Bucket, error) {
	all, err := c.buckets(ctx)
	if err != nil {
		return nil, err
	}
	var matched []synctypes.Bucket
	for _, b := range all {
		if normalized, ok := synctypes.NormalizeBucketType(b.Type); ok && normalized == want {
			matched = append(matched, b)
		}
	}
	return matched, nil
}

// GetWindowBuckets returns every active-window bucket.
func (c *Client) GetWindowBuckets(ctx context.Context) ([]synctypes.Bucket, error) {
	return c.bucketsByType(ctx, synctypes.BucketWindow)
}

// GetWebBuckets returns every browser-tab bucket.
func (c *Client) GetWebBuckets(ctx context.Context) ([]synctypes.Bucket, error) {
	return c.bucketsByType(ctx, synctypes.BucketWeb)
}

// GetAFKBuckets returns every AFK-status bucket.
func (c *Client) GetAFKBuckets(ctx context.Context) ([]synctypes.Bucket, error) {
	return c.bucketsByType(ctx, synctypes.BucketAFK)
}

// GetInputBuckets returns every input-counter bucket.
func (c *Client) GetInputBuckets(ctx context.Context) ([]synctypes.Bucket, error) {
	return c.bucketsByType(ctx, synctypes.BucketInput)
}

type eventWire struct {
	ID        int64          `json:"id"`
	Timestamp string         `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
}

// GetEvents fetches events for bucketID, most-recent-first as the tracker
// returns them. start/end are optional RFC3339 bounds; limit <= 0 means no
// limit parameter is sent.
func (c *Client) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]synctypes.Event, error) {
	q := url.Values{}
	if start != nil {
		q.Set("start", start.UTC().Format(time.RFC3339Nano))
	}
	if end != nil {
		q.Set("end", end.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := fmt.Sprintf("/buckets/%s/events", url.PathEscape(bucketID))
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var wire []eventWire
	if err := c.get(ctx, path, &wire); err != nil {
		return nil, fmt.Errorf("trackerclient: get events for bucket %s: %w", bucketID, err)
	}

	bucketType, _ := c.bucketType(ctx, bucketID)

	events := make([]synctypes.Event, 0, len(wire))
	for _, e := range wire {
		ts, err := parseTimestamp(e.Timestamp)
		if err != nil {
			continue
		}
		events = append(events, synctypes.Event{
			ID:         e.ID,
			Timestamp:  ts,
			Duration:   e.Duration,
			BucketID:   bucketID,
			BucketType: bucketType,
			Data:       e.Data,
		})
	}
	return events, nil
}

func (c *Client) bucketType(ctx context.Context, bucketID string) (synctypes.BucketType, bool) {
	all, err := c.buckets(ctx)
	if err != nil {
		return "", false
	}
	b, ok := all[bucketID]
	if !ok {
		return "", false
	}
	return synctypes.NormalizeBucketType(b.Type)
}

// parseTimestamp accepts ISO-8601 with a trailing Z or a numeric UTC offset,
// as emitted by either tracker server implementation.
func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("trackerclient: unrecognized timestamp %q", raw)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trackerclient: %s %s: http %d", http.MethodGet, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
