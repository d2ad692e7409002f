// FILE: internal/controller/admin_controller.go
package controller

import (
	"strings"

	"mediquery-be/internal/dto"
	"mediquery-be/internal/pkg/serverutils"
	"mediquery-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)

	// Prompt Management
	ListPrompts(ctx *fiber.Ctx) error
	UpdatePrompt(ctx *fiber.Ctx) error
	ActivateVersion(ctx *fiber.Ctx) error

	// Preset Management
	SavePreset(ctx *fiber.Ctx) error
	ListPresets(ctx *fiber.Ctx) error
	GetPreset(ctx *fiber.Ctx) error
	ApplyPreset(ctx *fiber.Ctx) error
	DeletePreset(ctx *fiber.Ctx) error

	// Pipeline Components
	Refresh(ctx *fiber.Ctx) error
	ConfigureSources(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
}

type adminController struct {
	service    service.IAdminService
	askService service.IAskService // Stats alias
}

func NewAdminController(service service.IAdminService, askService service.IAskService) IAdminController {
	return &adminController{
		service:    service,
		askService: askService,
	}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.JwtMiddleware) // ✅ PROTECTED

	// Prompt Management
	h.Get("/prompts", c.ListPrompts)
	h.Put("/prompts/:stage", c.UpdatePrompt)
	h.Put("/prompts/:stage/version", c.ActivateVersion)

	// Preset Management
	h.Post("/presets", c.SavePreset)
	h.Get("/presets", c.ListPresets)
	h.Get("/presets/:name", c.GetPreset)
	h.Post("/presets/:name/apply", c.ApplyPreset)
	h.Delete("/presets/:name", c.DeletePreset)

	// Pipeline Components
	h.Post("/refresh", c.Refresh)
	h.Put("/sources", c.ConfigureSources)
	h.Get("/stats", c.Stats)
}

// ============================================================================
// Prompt Management
// ============================================================================

func (c *adminController) ListPrompts(ctx *fiber.Ctx) error {
	res, err := c.service.ListPrompts(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all prompts", res))
}

func (c *adminController) UpdatePrompt(ctx *fiber.Ctx) error {
	stage := ctx.Params("stage")

	var req dto.UpdatePromptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdatePrompt(ctx.Context(), stage, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update prompt", res))
}

func (c *adminController) ActivateVersion(ctx *fiber.Ctx) error {
	stage := ctx.Params("stage")

	var req dto.ActivateVersionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ActivateVersion(ctx.Context(), stage, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success activate prompt version", res))
}

// ============================================================================
// Preset Management
// ============================================================================

func (c *adminController) SavePreset(ctx *fiber.Ctx) error {
	var req dto.SavePresetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SavePreset(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success save preset", res))
}

func (c *adminController) ListPresets(ctx *fiber.Ctx) error {
	res, err := c.service.ListPresets(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all presets", res))
}

func (c *adminController) GetPreset(ctx *fiber.Ctx) error {
	name := ctx.Params("name")

	res, err := c.service.GetPreset(ctx.Context(), name)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show preset", res))
}

func (c *adminController) ApplyPreset(ctx *fiber.Ctx) error {
	name := ctx.Params("name")

	res, err := c.service.ApplyPreset(ctx.Context(), name)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success apply preset", res))
}

func (c *adminController) DeletePreset(ctx *fiber.Ctx) error {
	name := ctx.Params("name")

	if err := c.service.DeletePreset(ctx.Context(), name); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete preset", nil))
}

// ============================================================================
// Pipeline Components
// ============================================================================

func (c *adminController) Refresh(ctx *fiber.Ctx) error {
	res, err := c.service.Refresh(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success refresh pipeline components", res))
}

func (c *adminController) ConfigureSources(ctx *fiber.Ctx) error {
	var req dto.ConfigureSourcesRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ConfigureSources(ctx.Context(), &req)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unknown source") {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
		}
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success configure sources", res))
}

func (c *adminController) Stats(ctx *fiber.Ctx) error {
	res, err := c.askService.Stats(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get system stats", res))
}
