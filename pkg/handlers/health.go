package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/config"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
)

// ServiceName identifies this service in status responses.
const ServiceName = "clearquote-engine"

const healthCheckTimeout = 2 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports dependency status.
type HealthResponse struct {
	Status     string `json:"status"` // "ok" or "degraded"
	Database   string `json:"database"`
	Translator string `json:"translator,omitempty"` // circuit breaker state
}

// DatabasePinger is the part of the executor health needs.
type DatabasePinger interface {
	TestConnection(ctx context.Context) error
}

// HealthHandler handles root, health check and ping endpoints.
type HealthHandler struct {
	cfg        *config.Config
	db         DatabasePinger
	translator func() string
	logger     *zap.Logger
}

// NewHealthHandler creates a HealthHandler. db and translatorState may be
// nil.
func NewHealthHandler(cfg *config.Config, db DatabasePinger, translatorState func() string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, translator: translatorState, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Root handles GET / with a static liveness answer.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName}); err != nil {
		h.logger.Error("Failed to encode root response", zap.Error(err))
	}
}

// Health handles GET /health. It answers 503 when the database is
// unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if h.db == nil {
		resp.Database = "not_configured"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.db.TestConnection(ctx); err != nil {
			h.logger.Warn("Database health check failed", zap.String("error", logging.SanitizeError(err)))
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.translator != nil {
		resp.Translator = h.translator()
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     ServiceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
