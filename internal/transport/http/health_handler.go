package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// LicenseCounter reports the number of stored licenses. Satisfied by the
// sqlite store; the count doubles as a storage liveness probe.
type LicenseCounter interface {
	CountLicenses(ctx context.Context) (int64, error)
}

// HealthHandler handles health and version requests.
type HealthHandler struct {
	counter LicenseCounter
	logger  *slog.Logger
	version string
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(counter LicenseCounter, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		counter: counter,
		logger:  logger.With(slog.String("handler", "health")),
		version: version,
		started: time.Now(),
	}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Licenses int64  `json:"licenses"`
}

// VersionResponse is the version payload.
type VersionResponse struct {
	Version string `json:"version"`
}

// HealthCheck handles GET /api/health. Storage failures degrade the status
// instead of failing the endpoint so load balancers still get a body.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := &HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}

	count, err := h.counter.CountLicenses(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "storage health probe failed", slog.String("error", err.Error()))
		resp.Status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
	} else {
		resp.Licenses = count
	}

	render.JSON(w, r, resp)
}

// Version handles GET /api/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, &VersionResponse{Version: h.version})
}
