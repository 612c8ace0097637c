package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/app"
	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/history"
	"github.com/wfassist/tailor/internal/pack"
)

// Handlers contains all HTTP handlers for the Tailor local API
type Handlers struct {
	app      *app.App
	validate *validator.Validate
}

// NewHandlers creates the API handlers over an application context
func NewHandlers(a *app.App) *Handlers {
	return &Handlers{app: a, validate: validator.New()}
}

// ErrorResponse represents the standard error response format
// @Description Standard error response format
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"NOT_INSTALLED"`
	Message string `json:"message" example:"pack 'crm' is not installed"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
// @Description Standard success response format
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// PackListResponse represents the response for listing packs
// @Description Installed packs
type PackListResponse struct {
	Packs []domain.PackInfo `json:"packs"`
	Count int               `json:"count" example:"3"`
}

// PathRequest names a file on the local machine
// @Description Local file path for backup and restore
type PathRequest struct {
	Path string `json:"path" validate:"required" example:"/home/user/tailor-backup.zip"`
}

// ValidateOrderRequest is the body of POST /v1/licenses/validate
// @Description Order number to validate
type ValidateOrderRequest struct {
	OrderNumber string `json:"order_number" validate:"required" example:"WF-20260101-0042"`
	PackID      string `json:"pack_id" example:"invoices"`
}

// StartTrialRequest is the body of POST /v1/licenses/trial
// @Description Trial request
type StartTrialRequest struct {
	PackID string `json:"pack_id" validate:"required" example:"invoices"`
	Email  string `json:"email" validate:"required,email" example:"owner@example.com"`
}

// CatalogInstallRequest is the optional body of POST /v1/catalog/{id}/install
// @Description Catalog install options
type CatalogInstallRequest struct {
	Version string `json:"version,omitempty" example:"1.4.0"`
	Replace bool   `json:"replace,omitempty"`
}

// ListPacksHandler handles GET /v1/packs
// @Summary      List installed packs
// @Tags         Packs
// @Produce      json
// @Success      200 {object} SuccessResponse{data=PackListResponse}
// @Router       /v1/packs [get]
func (h *Handlers) ListPacksHandler(c *fiber.Ctx) error {
	packs := h.app.Packs.List()
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   PackListResponse{Packs: packs, Count: len(packs)},
	})
}

// ImportPackHandler handles POST /v1/packs/import
// @Summary      Import a pack archive
// @Description  Installs the uploaded ZIP archive. New packs start disabled.
// @Tags         Packs
// @Accept       multipart/form-data
// @Produce      json
// @Param        archive formData file true "Pack archive"
// @Param        replace query bool false "Upgrade an installed pack in place"
// @Param        avoid_collision query bool false "Install under a free pack id"
// @Success      201 {object} SuccessResponse{data=domain.PackInfo}
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      424 {object} ErrorResponse
// @Router       /v1/packs/import [post]
func (h *Handlers) ImportPackHandler(c *fiber.Ctx) error {
	fh, err := c.FormFile("archive")
	if err != nil {
		return h.sendError(c, domain.NewAppError(domain.ErrInvalidInput, "multipart field 'archive' is required", 400, nil))
	}
	f, err := fh.Open()
	if err != nil {
		return h.sendError(c, domain.NewAppErrorWithCause(domain.ErrInvalidArchive, "uploaded archive could not be read", 400, err, nil))
	}
	defer f.Close()

	opts := pack.ImportOptions{
		Replace:        c.QueryBool("replace"),
		AvoidCollision: c.QueryBool("avoid_collision"),
	}
	installed, err := h.app.ImportPackReader(c.UserContext(), f, opts)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(201).JSON(SuccessResponse{Status: "success", Data: installed.Info()})
}

// GetPackHandler handles GET /v1/packs/{id}
// @Summary      Get an installed pack
// @Tags         Packs
// @Produce      json
// @Param        id path string true "Pack ID"
// @Success      200 {object} SuccessResponse{data=domain.InstalledPack}
// @Failure      404 {object} ErrorResponse
// @Router       /v1/packs/{id} [get]
func (h *Handlers) GetPackHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	p, ok := h.app.Packs.Get(id)
	if !ok {
		return h.sendError(c, notInstalled(id))
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: p})
}

// PackStatusHandler handles GET /v1/packs/{id}/status
// @Summary      Pack runtime status
// @Tags         Packs
// @Produce      json
// @Param        id path string true "Pack ID"
// @Success      200 {object} SuccessResponse{data=domain.PackStatus}
// @Router       /v1/packs/{id}/status [get]
func (h *Handlers) PackStatusHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: h.app.GetPackStatus(c.Params("id"))})
}

// ResolveDependenciesHandler handles GET /v1/packs/{id}/dependencies
// @Summary      Plan the actions needed to satisfy a pack's dependencies
// @Tags         Packs
// @Produce      json
// @Param        id path string true "Pack ID"
// @Success      200 {object} SuccessResponse{data=[]domain.DependencyAction}
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /v1/packs/{id}/dependencies [get]
func (h *Handlers) ResolveDependenciesHandler(c *fiber.Ctx) error {
	actions, err := h.app.Packs.ResolveDependencies(c.Params("id"))
	if err != nil {
		return h.sendError(c, err)
	}
	if actions == nil {
		actions = []domain.DependencyAction{}
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: actions})
}

// EnablePackHandler handles POST /v1/packs/{id}/enable
// @Summary      Enable a pack and load its extension
// @Tags         Packs
// @Produce      json
// @Param        id path string true "Pack ID"
// @Success      200 {object} SuccessResponse{data=domain.PackStatus}
// @Failure      402 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      424 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /v1/packs/{id}/enable [post]
func (h *Handlers) EnablePackHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.app.EnablePack(c.UserContext(), id); err != nil {
		return h.sendError(c, err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: h.app.GetPackStatus(id)})
}

// DisablePackHandler handles POST /v1/packs/{id}/disable
// @Summary      Unload a pack's extension and disable it
// @Tags         Packs
// @Produce      json
// @Param        id path string true "Pack ID"
// @Success      200 {object} SuccessResponse{data=domain.PackStatus}
// @Failure      404 {object} ErrorResponse
// @Router       /v1/packs/{id}/disable [post]
func (h *Handlers) DisablePackHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.app.DisablePack(c.UserContext(), id); err != nil {
		return h.sendError(c, err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: h.app.GetPackStatus(id)})
}

// UninstallPackHandler handles DELETE /v1/packs/{id}
// @Summary      Uninstall a pack
// @Tags         Packs
// @Param        id path string true "Pack ID"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /v1/packs/{id} [delete]
func (h *Handlers) UninstallPackHandler(c *fiber.Ctx) error {
	if err := h.app.UninstallPack(c.UserContext(), c.Params("id")); err != nil {
		return h.sendError(c, err)
	}
	return c.SendStatus(204)
}

// ExportPackHandler handles GET /v1/packs/{id}/export
// @Summary      Download a pack as an archive
// @Tags         Packs
// @Produce      application/zip
// @Param        id path string true "Pack ID"
// @Success      200 {file} file
// @Failure      404 {object} ErrorResponse
// @Router       /v1/packs/{id}/export [get]
func (h *Handlers) ExportPackHandler(c *fiber.Ctx) error {
	id := c.Params("id")

	tmp, err := os.MkdirTemp("", "tailor-export-")
	if err != nil {
		return h.sendError(c, err)
	}
	defer os.RemoveAll(tmp)

	dest := filepath.Join(tmp, id+".zip")
	info, err := h.app.Export(c.UserContext(), id, dest)
	if err != nil {
		return h.sendError(c, err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return h.sendError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-%s.zip"`, info.PackID, info.Version))
	c.Set("X-Pack-Checksum", info.Checksum)
	return c.Status(200).Send(data)
}

// BackupHandler handles POST /v1/backups
// @Summary      Back up every installed pack to a local file
// @Tags         Backup
// @Accept       json
// @Produce      json
// @Param        request body PathRequest true "Destination"
// @Success      201 {object} SuccessResponse{data=domain.BackupManifest}
// @Router       /v1/backups [post]
func (h *Handlers) BackupHandler(c *fiber.Ctx) error {
	var req PathRequest
	if err := h.parse(c, &req); err != nil {
		return h.sendError(c, err)
	}
	res := <-h.app.BackupAsync(c.UserContext(), req.Path)
	if res.Err != nil {
		return h.sendError(c, res.Err)
	}
	return c.Status(201).JSON(SuccessResponse{Status: "success", Data: res.Value})
}

// RestoreHandler handles POST /v1/restore
// @Summary      Restore packs from a backup file
// @Tags         Backup
// @Accept       json
// @Produce      json
// @Param        request body PathRequest true "Backup archive"
// @Success      200 {object} SuccessResponse{data=domain.RestoreResult}
// @Router       /v1/restore [post]
func (h *Handlers) RestoreHandler(c *fiber.Ctx) error {
	var req PathRequest
	if err := h.parse(c, &req); err != nil {
		return h.sendError(c, err)
	}
	res := <-h.app.RestoreAsync(c.UserContext(), req.Path)
	if res.Err != nil {
		return h.sendError(c, res.Err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: res.Value})
}

// ValidateOrderHandler handles POST /v1/licenses/validate
// @Summary      Validate an order number
// @Description  Failures are reported in the result body, not as HTTP errors
// @Tags         Licenses
// @Accept       json
// @Produce      json
// @Param        request body ValidateOrderRequest true "Order"
// @Success      200 {object} SuccessResponse{data=domain.LicenseValidation}
// @Failure      429 {object} ErrorResponse
// @Router       /v1/licenses/validate [post]
func (h *Handlers) ValidateOrderHandler(c *fiber.Ctx) error {
	var req ValidateOrderRequest
	if err := h.parse(c, &req); err != nil {
		return h.sendError(c, err)
	}
	res := <-h.app.ValidateOrderAsync(c.UserContext(), req.OrderNumber, req.PackID)
	if res.Err != nil {
		return h.sendError(c, res.Err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: res.Value})
}

// StartTrialHandler handles POST /v1/licenses/trial
// @Summary      Start a trial for a pack
// @Tags         Licenses
// @Accept       json
// @Produce      json
// @Param        request body StartTrialRequest true "Trial"
// @Success      201 {object} SuccessResponse{data=domain.PackLicense}
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /v1/licenses/trial [post]
func (h *Handlers) StartTrialHandler(c *fiber.Ctx) error {
	var req StartTrialRequest
	if err := h.parse(c, &req); err != nil {
		return h.sendError(c, err)
	}
	trial, err := h.app.StartTrial(c.UserContext(), req.PackID, req.Email)
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(201).JSON(SuccessResponse{Status: "success", Data: trial})
}

// ListLicensesHandler handles GET /v1/licenses
// @Summary      List stored licenses
// @Tags         Licenses
// @Produce      json
// @Success      200 {object} SuccessResponse{data=[]domain.PackLicense}
// @Router       /v1/licenses [get]
func (h *Handlers) ListLicensesHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: h.app.Licenses.List()})
}

// RevokeLicenseHandler handles DELETE /v1/licenses/{order}
// @Summary      Revoke a license
// @Tags         Licenses
// @Param        order path string true "Order number"
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Router       /v1/licenses/{order} [delete]
func (h *Handlers) RevokeLicenseHandler(c *fiber.Ctx) error {
	if err := h.app.Licenses.Revoke(c.Params("order")); err != nil {
		return h.sendError(c, err)
	}
	return c.SendStatus(204)
}

// ListCapabilitiesHandler handles GET /v1/capabilities
// @Summary      List registered capabilities
// @Tags         Extensions
// @Produce      json
// @Param        category query string false "Filter by category"
// @Param        pack_id query string false "Filter by pack"
// @Success      200 {object} SuccessResponse{data=[]domain.PackCapability}
// @Router       /v1/capabilities [get]
func (h *Handlers) ListCapabilitiesHandler(c *fiber.Ctx) error {
	caps := h.app.Extensions.Capabilities()
	var list []domain.PackCapability
	switch {
	case c.Query("pack_id") != "":
		list = caps.ForPack(c.Query("pack_id"))
	case c.Query("category") != "":
		list = caps.ByCategory(c.Query("category"))
	default:
		list = caps.All()
	}
	if list == nil {
		list = []domain.PackCapability{}
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: list})
}

// ListExtensionPointsHandler handles GET /v1/extension-points
// @Summary      List UI extension points
// @Tags         Extensions
// @Produce      json
// @Success      200 {object} SuccessResponse{data=[]domain.UIExtensionPoint}
// @Router       /v1/extension-points [get]
func (h *Handlers) ListExtensionPointsHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: h.app.Extensions.UI().Points()})
}

// ListComponentsHandler handles GET /v1/extension-points/{name}/components
// @Summary      List components placed at an extension point
// @Tags         Extensions
// @Produce      json
// @Param        name path string true "Extension point"
// @Param        enabled query bool false "Only enabled components"
// @Success      200 {object} SuccessResponse{data=[]domain.UIComponent}
// @Failure      404 {object} ErrorResponse
// @Router       /v1/extension-points/{name}/components [get]
func (h *Handlers) ListComponentsHandler(c *fiber.Ctx) error {
	ui := h.app.Extensions.UI()
	name := c.Params("name")
	if _, ok := ui.Point(name); !ok {
		return h.sendError(c, domain.NewAppError(domain.ErrNotFound,
			fmt.Sprintf("extension point '%s' does not exist", name), 404, map[string]any{"extension_point": name}))
	}

	components := ui.Components(name)
	if c.QueryBool("enabled") {
		components = ui.EnabledComponents(name)
	}
	if components == nil {
		components = []domain.UIComponent{}
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: components})
}

// CatalogHandler handles GET /v1/catalog
// @Summary      List packs offered by the catalog
// @Tags         Catalog
// @Produce      json
// @Success      200 {object} SuccessResponse{data=domain.CatalogIndex}
// @Failure      503 {object} ErrorResponse
// @Router       /v1/catalog [get]
func (h *Handlers) CatalogHandler(c *fiber.Ctx) error {
	index, err := h.app.Catalog.FetchIndex(c.UserContext())
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: index})
}

// CatalogUpdatesHandler handles GET /v1/catalog/updates
// @Summary      List installed packs with a newer catalog version
// @Tags         Catalog
// @Produce      json
// @Success      200 {object} SuccessResponse{data=[]domain.PackUpdate}
// @Failure      503 {object} ErrorResponse
// @Router       /v1/catalog/updates [get]
func (h *Handlers) CatalogUpdatesHandler(c *fiber.Ctx) error {
	updates, err := h.app.CheckUpdates(c.UserContext())
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: updates})
}

// CatalogInstallHandler handles POST /v1/catalog/{id}/install
// @Summary      Download and install a pack from the catalog
// @Tags         Catalog
// @Accept       json
// @Produce      json
// @Param        id path string true "Pack ID"
// @Param        request body CatalogInstallRequest false "Options"
// @Success      201 {object} SuccessResponse{data=domain.PackInfo}
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /v1/catalog/{id}/install [post]
func (h *Handlers) CatalogInstallHandler(c *fiber.Ctx) error {
	var req CatalogInstallRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return h.sendError(c, domain.NewAppError(domain.ErrInvalidInput, "Invalid JSON payload", 400,
				map[string]string{"error": err.Error()}))
		}
	}

	installed, err := h.app.InstallFromCatalog(c.UserContext(), c.Params("id"), req.Version,
		pack.ImportOptions{Replace: req.Replace})
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(201).JSON(SuccessResponse{Status: "success", Data: installed.Info()})
}

// HistoryHandler handles GET /v1/history
// @Summary      Pack lifecycle history, newest first
// @Tags         History
// @Produce      json
// @Param        pack_id query string false "Filter by pack"
// @Param        action query string false "Filter by action"
// @Param        limit query int false "Maximum events"
// @Success      200 {object} SuccessResponse{data=[]domain.PackEvent}
// @Router       /v1/history [get]
func (h *Handlers) HistoryHandler(c *fiber.Ctx) error {
	events, err := h.app.History.List(c.UserContext(), history.Filter{
		PackID: c.Query("pack_id"),
		Action: c.Query("action"),
		Limit:  c.QueryInt("limit", history.DefaultLimit),
	})
	if err != nil {
		return h.sendError(c, err)
	}
	return c.Status(200).JSON(SuccessResponse{Status: "success", Data: events})
}

// HealthHandler handles GET /health
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200 {object} domain.SystemHealth
// @Failure      503 {object} domain.SystemHealth
// @Router       /health [get]
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	health := h.app.Health.CheckHealth(c.UserContext())

	// Degraded still serves requests
	status := 200
	if health.Status == domain.HealthStatusUnhealthy {
		status = 503
	}

	return c.Status(status).JSON(map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp.Format(time.RFC3339),
		"components": health.Components,
		"uptime":     health.Uptime.String(),
	})
}

// MetricsHandler handles GET /metrics
// @Summary      Component statistics
// @Tags         System
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Router       /metrics [get]
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data:   h.app.Health.CheckHealth(c.UserContext()).Metrics,
	})
}

// parse decodes and validates a JSON body
func (h *Handlers) parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return domain.NewAppError(domain.ErrInvalidInput, "Invalid JSON payload", 400,
			map[string]string{"error": err.Error()})
	}
	if err := h.validate.Struct(out); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
		}
		return domain.NewAppError(domain.ErrInvalidInput, "Request failed validation", 400,
			map[string]any{"fields": fields})
	}
	return nil
}

// sendError writes err in the standard error format
func (h *Handlers) sendError(c *fiber.Ctx, err error) error {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("request_id", getRequestID(c)).Str("path", c.Path()).Msg("Unhandled error")
		appErr = domain.NewAppErrorWithCause(domain.ErrInternal, "Internal server error", 500, err, nil)
	}
	appErr = appErr.WithContext(c.UserContext(), c.Route().Path)

	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func notInstalled(id string) *domain.AppError {
	return domain.NewAppError(domain.ErrNotInstalled, fmt.Sprintf("pack '%s' is not installed", id), 404,
		map[string]any{"pack_id": id})
}

// getRequestID returns the request ID set by the requestid middleware
func getRequestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals("requestid").(string); ok {
		return rid
	}
	return ""
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, domain.RequestIDKey, id)
}
