package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Impto-dev/license-bot/internal/backup"
	apierrors "github.com/Impto-dev/license-bot/internal/errors"
)

// BackupHandler handles snapshot management requests.
type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{
		manager: manager,
		logger:  logger.With(slog.String("handler", "backup")),
	}
}

// Routes returns the router for snapshot endpoints. The caller is expected to
// gate it behind the admin middleware.
func (h *BackupHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/{id}/restore", h.Restore)
	return r
}

// SnapshotInfo is the wire form of one retained snapshot.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// SnapshotListResponse wraps a snapshot listing, newest first.
type SnapshotListResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
	Count     int            `json:"count"`
}

// SnapshotCreateResponse reports the snapshot produced by a manual trigger.
type SnapshotCreateResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// RestoreResponse reports a completed restore.
type RestoreResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// List handles GET /api/admin/backups.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.manager.List()
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	infos := make([]SnapshotInfo, 0, len(snapshots))
	for _, s := range snapshots {
		infos = append(infos, SnapshotInfo{ID: s.ID, Size: s.Size, Created: s.Created})
	}

	render.JSON(w, r, &SnapshotListResponse{Snapshots: infos, Count: len(infos)})
}

// Create handles POST /api/admin/backups.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := h.manager.Snapshot(ctx)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "manual snapshot created", slog.String("snapshot_id", id))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, &SnapshotCreateResponse{ID: id, Message: "snapshot created"})
}

// Restore handles POST /api/admin/backups/{id}/restore.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.manager.Restore(ctx, id); err != nil {
		h.renderError(w, r, err)
		return
	}

	h.logger.WarnContext(ctx, "database restored from snapshot", slog.String("snapshot_id", id))

	render.JSON(w, r, &RestoreResponse{ID: id, Message: "database restored"})
}

func (h *BackupHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromDomain(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "snapshot request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	render.Render(w, r, apiErr)
}
