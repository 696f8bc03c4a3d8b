package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/config"
	"github.com/ekaya-inc/friendgraph/pkg/logging"
)

// readyTimeout bounds each dependency check made by /ready.
const readyTimeout = 2 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ReadyResponse reports the state of each backing store.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadinessCheck names a dependency probed by /ready.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandler handles health check, ping and readiness endpoints.
type HealthHandler struct {
	cfg    *config.Config
	checks []ReadinessCheck
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks are probed in order by /ready.
func NewHealthHandler(cfg *config.Config, checks []ReadinessCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, checks: checks, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
	mux.HandleFunc("/ready", h.Ready)
}

// Health handles GET /health. It only reports that the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "friendgraph",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Ready handles GET /ready. It answers 503 if any backing store is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	response := ReadyResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := check.Pinger.Ping(ctx)
		cancel()

		if err != nil {
			response.Status = "unavailable"
			response.Checks[check.Name] = logging.SanitizeError(err)
			h.logger.Warn("Readiness check failed",
				zap.String("check", check.Name),
				logging.Error(err))
			continue
		}
		response.Checks[check.Name] = "ok"
	}

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode ready response", zap.Error(err))
	}
}
