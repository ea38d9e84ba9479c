// Package localapi exposes the agent's local control surface: a
// loopback-only HTTP API the tray process (or any other local
// collaborator) uses to read status and drive pause/resume/private-mode,
// plus the Prometheus /metrics and health endpoints the chi server
// scaffold already provides. It adapts pkg/http_server/chi_server rather
// than building its own router.
package localapi

import (
	"context"
	"encoding/json"
	"net/http"

	chiserver "github.com/betterqa-sync/agent-core/pkg/http_server/chi_server"
	"github.com/betterqa-sync/agent-core/pkg/observability"
	"github.com/betterqa-sync/agent-core/pkg/responses"
	"github.com/go-chi/chi/v5"
)

// Controller is the subset of the orchestrator this API drives. Defined
// here (rather than imported as a concrete type) so tests can fake it
// without constructing a full Orchestrator.
type Controller interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetPrivateMode(ctx context.Context, enabled bool) error
	Status() StatusView
}

// StatusView is the JSON shape served at GET /status.
type StatusView struct {
	Paused         bool    `json:"paused"`
	NetworkPaused  bool    `json:"network_paused"`
	PrivateMode    bool    `json:"private_mode"`
	SessionActive  bool    `json:"session_active"`
	CurrentProject *string `json:"current_project,omitempty"`
}

// Server wraps a chi_server.Server configured with the agent's local
// control routes.
type Server struct {
	inner *chiserver.Server
}

// New builds the local control server bound to addr (normally a loopback
// address such as "127.0.0.1:47811") and wired to ctrl.
func New(addr string, ctrl Controller, o11y observability.Observability, version string) (*Server, error) {
	cfg := chiserver.DefaultConfig()
	cfg.Address = addr
	cfg.ServiceName = "betterflow-sync-agent-localapi"
	cfg.ServiceVersion = version
	cfg.Environment = "local"
	cfg.EnableMetrics = true

	inner, err := chiserver.New(o11y,
		chiserver.WithConfig(cfg),
		chiserver.WithHealthChecks(map[string]chiserver.HealthCheckFunc{
			"controller": func(ctx context.Context) error { return nil },
		}),
	)
	if err != nil {
		return nil, err
	}
	inner.RegisterRouters(&controlRouter{ctrl: ctrl, o11y: o11y})
	return &Server{inner: inner}, nil
}

// Run blocks serving the local API until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.inner.Start(ctx)
}

// Shutdown gracefully stops the local API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// controlRouter implements chiserver.Router, registering the
// pause/resume/private/status routes onto the shared chi router.
type controlRouter struct {
	ctrl Controller
	o11y observability.Observability
}

func (r *controlRouter) Register(router chi.Router) {
	router.Get("/status", r.handleStatus)
	router.Post("/pause", r.handlePause)
	router.Post("/resume", r.handleResume)
	router.Post("/private", r.handlePrivate)
}

func (r *controlRouter) handleStatus(w http.ResponseWriter, req *http.Request) {
	responses.JSON(w, http.StatusOK, r.ctrl.Status())
}

func (r *controlRouter) handlePause(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Pause(req.Context()); err != nil {
		r.writeError(w, req, err)
		return
	}
	responses.JSON(w, http.StatusOK, r.ctrl.Status())
}

func (r *controlRouter) handleResume(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Resume(req.Context()); err != nil {
		r.writeError(w, req, err)
		return
	}
	responses.JSON(w, http.StatusOK, r.ctrl.Status())
}

type privateModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (r *controlRouter) handlePrivate(w http.ResponseWriter, req *http.Request) {
	var body privateModeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := r.ctrl.SetPrivateMode(req.Context(), body.Enabled); err != nil {
		r.writeError(w, req, err)
		return
	}
	responses.JSON(w, http.StatusOK, r.ctrl.Status())
}

func (r *controlRouter) writeError(w http.ResponseWriter, req *http.Request, err error) {
	r.o11y.Logger().Warn(req.Context(), "local api request failed", observability.Error(err))
	responses.Error(w, http.StatusInternalServerError, err.Error())
}
