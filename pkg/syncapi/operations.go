package syncapi

import (
	"context"
	"net/http"

	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

// EventBatch is the request body for sendEvents.
type EventBatch struct {
	Events []synctypes.Event `json:"events"`
}

// SendEvents uploads a batch of events, retrying connection/timeout/5xx
// failures per the client's policy. A 401/403 response returns an
// *APIError wrapping ErrAuth without being retried.
func (c *Client) SendEvents(ctx context.Context, events []synctypes.Event) (processed, failed int, err error) {
	var result syncResult
	err = c.doWithRetry(ctx, http.MethodPost, c.baseURL, "/events/batch", EventBatch{Events: events}, &result)
	return result.Processed, result.Failed, err
}

// StartSession notifies the remote that a new active-usage session began.
func (c *Client) StartSession(ctx context.Context) error {
	return c.doWithRetry(ctx, http.MethodPost, c.baseURL, "/sessions/start", struct{}{}, nil)
}

type endSessionRequest struct {
	Reason synctypes.SessionEndReason `json:"reason"`
}

// EndSession notifies the remote that the active session ended, with reason
// one of the synctypes.Reason* constants.
func (c *Client) EndSession(ctx context.Context, reason synctypes.SessionEndReason) error {
	return c.doWithRetry(ctx, http.MethodPost, c.baseURL, "/sessions/end", endSessionRequest{Reason: reason}, nil)
}

// HeartbeatRequest carries the agent's identity for the periodic heartbeat.
type HeartbeatRequest struct {
	AgentVersion string `json:"agent_version"`
	Timezone     string `json:"timezone"`
}

// HeartbeatCommand is one action the server asked the agent to perform.
type HeartbeatCommand struct {
	Type string `json:"type"`
}

// HeartbeatResponse is the heartbeat endpoint's decoded payload.
type HeartbeatResponse struct {
	Commands            []HeartbeatCommand `json:"commands"`
	MinimumAgentVersion string              `json:"minimum_agent_version"`
	ConfigUpdated       bool                `json:"config_updated"`
}

// Heartbeat reports agent liveness and returns any pending server commands.
// Not retried: a failed heartbeat is simply retried on the next schedule.
func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := c.doRequest(ctx, http.MethodPost, c.baseURL, "/heartbeat", req, &resp)
	return resp, err
}

// SessionSummary is the today_summary portion of getStatus.
type SessionSummary struct {
	TotalSeconds float64 `json:"total_seconds"`
}

// StatusResponse is getStatus's decoded payload.
type StatusResponse struct {
	ActiveSession *string        `json:"active_session"`
	TodaySummary  SessionSummary `json:"today_summary"`
}

// GetStatus fetches the remote's view of today's tracked time.
func (c *Client) GetStatus(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.doRequest(ctx, http.MethodGet, c.baseURL, "/events/status", nil, &resp)
	return resp, err
}

// ServerConfig is the getConfig payload: server-pushed overrides of local
// defaults (sync cadence, privacy policy, feature toggles).
type ServerConfig struct {
	SyncIntervalSeconds int                     `json:"sync_interval_seconds"`
	HeartbeatInterval   int                     `json:"heartbeat_interval"`
	Privacy             synctypes.PrivacyPolicy `json:"privacy"`
}

// GetConfig fetches the server-side configuration overrides.
func (c *Client) GetConfig(ctx context.Context) (ServerConfig, error) {
	var cfg ServerConfig
	err := c.doRequest(ctx, http.MethodGet, c.baseURL, "/config", nil, &cfg)
	return cfg, err
}

// Project is one selectable project/client tag.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetProjects fetches the list of projects the current user may tag time to.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := c.doRequest(ctx, http.MethodGet, c.baseURL, "/projects", nil, &projects)
	return projects, err
}

// GetCategories fetches the server's current app-to-category mapping.
func (c *Client) GetCategories(ctx context.Context) ([]synctypes.CategoryMapping, error) {
	var categories []synctypes.CategoryMapping
	err := c.doRequest(ctx, http.MethodGet, c.baseURL, "/categories", nil, &categories)
	return categories, err
}

// Trend is one point of historical tracked-time data.
type Trend struct {
	Date         string  `json:"date"`
	TotalSeconds float64 `json:"total_seconds"`
}

// GetTrends fetches historical tracked-time trend data.
func (c *Client) GetTrends(ctx context.Context) ([]Trend, error) {
	var trends []Trend
	err := c.doRequest(ctx, http.MethodGet, c.baseURL, "/trends", nil, &trends)
	return trends, err
}

// Revoke invalidates the current device's token on the remote.
func (c *Client) Revoke(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL, "/revoke", struct{}{}, nil)
}
