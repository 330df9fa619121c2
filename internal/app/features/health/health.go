// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Check is one named dependency probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// MongoCheck probes the primary of client.
func MongoCheck(client *mongo.Client) Check {
	return Check{
		Name: "mongodb",
		Ping: func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
	}
}

// Handler provides health check endpoints.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

// NewHandler creates a health Handler over checks.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checks: checks, logger: logger}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the probe aliases on the root router:
// /ready, /readyz and /livez.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run pings every dependency and reports per-service status.
func (h *Handler) run(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	resp := Response{Status: "ok", Services: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Services[c.Name] = "unavailable"
			h.logger.Warn("health check failed", zap.String("service", c.Name), zap.Error(err))
			continue
		}
		resp.Services[c.Name] = "ok"
	}
	return resp
}

// Check reports every dependency. 503 when any is down.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp := h.run(r.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonutil.JSON(w, status, resp)
}

// Ready is the readiness probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if resp := h.run(r.Context()); resp.Status != "ok" {
		jsonutil.JSON(w, http.StatusServiceUnavailable, Response{Status: "not ready"})
		return
	}
	jsonutil.OK(w, Response{Status: "ready"})
}

// Live is the liveness probe. It touches no dependency.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, Response{Status: "alive"})
}
