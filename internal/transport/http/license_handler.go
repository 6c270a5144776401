package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/Impto-dev/license-bot/internal/errors"
	"github.com/Impto-dev/license-bot/internal/license"
	"github.com/Impto-dev/license-bot/internal/middleware"
)

// validate is shared by all request binders. validator.Validate is safe for
// concurrent use.
var validate = validator.New()

// maxBulkCount bounds one bulk issue request.
const maxBulkCount = 100

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	service *license.Service
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service *license.Service, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// PublicRoutes registers the unauthenticated license endpoints directly on
// the given router, keeping the wire paths /api/validate and /api/redeem.
func (h *LicenseHandler) PublicRoutes(r chi.Router) {
	r.Post("/validate", h.Validate)
	r.Post("/redeem", h.Redeem)
}

// AdminRoutes returns the router for administrative license endpoints. The
// caller is expected to gate it behind the admin middleware.
func (h *LicenseHandler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/bulk", h.BulkCreate)
	r.Get("/{key}", h.Get)
	r.Post("/{key}/assign", h.Assign)
	r.Post("/{key}/renew", h.Renew)
	r.Post("/{key}/activate", h.Activate)
	r.Post("/{key}/deactivate", h.Deactivate)
	r.Delete("/{key}", h.Delete)
	return r
}

// ValidateRequest is the payload for license validation and redemption
// lookups.
type ValidateRequest struct {
	Key string `json:"key" validate:"required,min=8"`
}

// Bind implements render.Binder.
func (v *ValidateRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// RedeemRequest claims an unassigned license for a user.
type RedeemRequest struct {
	Key       string `json:"key" validate:"required,min=8"`
	OwnerID   string `json:"owner_id" validate:"required"`
	OwnerName string `json:"owner_name" validate:"required"`
}

// Bind implements render.Binder.
func (v *RedeemRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// CreateRequest issues a single license. A nil duration means lifetime.
type CreateRequest struct {
	Product      string `json:"product" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	DurationDays *int   `json:"duration_days" validate:"omitempty,gt=0"`
	KeyPrefix    string `json:"key_prefix" validate:"omitempty,alphanum,max=8"`
}

// Bind implements render.Binder.
func (v *CreateRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// BulkCreateRequest issues a batch of licenses with shared parameters.
type BulkCreateRequest struct {
	CreateRequest
	Count int `json:"count" validate:"required,gt=0"`
}

// Bind implements render.Binder.
func (v *BulkCreateRequest) Bind(r *http.Request) error {
	if err := validate.Struct(v); err != nil {
		return err
	}
	if v.Count > maxBulkCount {
		return errors.New("count exceeds the bulk issue limit")
	}
	return nil
}

// AssignRequest force-assigns a license to a user, overwriting any current
// owner.
type AssignRequest struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	OwnerName string `json:"owner_name" validate:"required"`
}

// Bind implements render.Binder.
func (v *AssignRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// RenewRequest updates the expiration of a license. A nil duration converts
// the license to lifetime; Extend stacks the new duration on top of the
// remaining validity instead of restarting from now.
type RenewRequest struct {
	DurationDays *int `json:"duration_days" validate:"omitempty,gt=0"`
	Extend       bool `json:"extend"`
}

// Bind implements render.Binder.
func (v *RenewRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// RedeemResponse wraps the license claimed by a redeem call.
type RedeemResponse struct {
	License *license.License `json:"license"`
	Message string           `json:"message"`
}

// ListResponse wraps a license listing.
type ListResponse struct {
	Licenses []license.License `json:"licenses"`
	Count    int               `json:"count"`
}

// BulkCreateResponse wraps a batch issue result.
type BulkCreateResponse struct {
	Licenses []license.License `json:"licenses"`
	Count    int               `json:"count"`
	BatchID  string            `json:"batch_id"`
}

// Validate handles POST /api/validate.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &ValidateRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Validate(ctx, data.Key)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, status)
}

// Redeem handles POST /api/redeem.
func (h *LicenseHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &RedeemRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	lic, err := h.service.Redeem(ctx, data.Key, data.OwnerID, data.OwnerName)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, &RedeemResponse{
		License: lic,
		Message: "license redeemed",
	})
}

// Create handles POST /api/admin/licenses.
func (h *LicenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &CreateRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	lic, err := h.service.Create(ctx, license.CreateParams{
		Product:      data.Product,
		Email:        data.Email,
		DurationDays: data.DurationDays,
		CreatedBy:    adminUser(r),
		KeyPrefix:    data.KeyPrefix,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, lic)
}

// BulkCreate handles POST /api/admin/licenses/bulk.
func (h *LicenseHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	data := &BulkCreateRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	licenses, err := h.service.BulkCreate(ctx, data.Count, license.CreateParams{
		Product:      data.Product,
		Email:        data.Email,
		DurationDays: data.DurationDays,
		CreatedBy:    adminUser(r),
		KeyPrefix:    data.KeyPrefix,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	batchID := ""
	if len(licenses) > 0 {
		batchID = licenses[0].Metadata.BatchID
	}

	h.logger.InfoContext(ctx, "bulk issue completed",
		slog.Int("count", len(licenses)),
		slog.String("batch_id", batchID),
		slog.Duration("latency", time.Since(start)),
	)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, &BulkCreateResponse{
		Licenses: licenses,
		Count:    len(licenses),
		BatchID:  batchID,
	})
}

// List handles GET /api/admin/licenses with an optional owner_id filter.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		licenses []license.License
		err      error
	)
	if ownerID := r.URL.Query().Get("owner_id"); ownerID != "" {
		licenses, err = h.service.ListByOwner(ctx, ownerID)
	} else {
		licenses, err = h.service.List(ctx)
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if licenses == nil {
		licenses = []license.License{}
	}
	render.JSON(w, r, &ListResponse{Licenses: licenses, Count: len(licenses)})
}

// Get handles GET /api/admin/licenses/{key}.
func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	lic, err := h.service.Lookup(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, lic)
}

// Assign handles POST /api/admin/licenses/{key}/assign.
func (h *LicenseHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &AssignRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	lic, err := h.service.Lookup(ctx, chi.URLParam(r, "key"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.service.Assign(ctx, lic, data.OwnerID, data.OwnerName); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, lic)
}

// Renew handles POST /api/admin/licenses/{key}/renew.
func (h *LicenseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &RenewRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	lic, err := h.service.Renew(ctx, chi.URLParam(r, "key"), data.DurationDays, data.Extend, adminUser(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, lic)
}

// Activate handles POST /api/admin/licenses/{key}/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/admin/licenses/{key}/deactivate.
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *LicenseHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()

	lic, err := h.service.Lookup(ctx, chi.URLParam(r, "key"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.service.SetActive(ctx, lic, active); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, lic)
}

// Delete handles DELETE /api/admin/licenses/{key}.
func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	lic, err := h.service.Lookup(ctx, chi.URLParam(r, "key"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := h.service.Delete(ctx, lic); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.NoContent(w, r)
}

// renderError maps a domain error onto the API error taxonomy. Internal
// failures are logged here with the cause; the response carries only the
// generic shape.
func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromDomain(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	render.Render(w, r, apiErr)
}

// adminUser returns the acting administrator identity, already vetted by the
// admin middleware.
func adminUser(r *http.Request) string {
	return r.Header.Get(middleware.AdminUserHeader)
}
