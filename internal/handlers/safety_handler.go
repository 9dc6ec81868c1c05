package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/orchestrator"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/services"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

type SafetyHandler struct {
	safetyService *services.SafetyService
	orchestrator  *orchestrator.Orchestrator
	// early dispatches validators alongside safety for apps with the
	// dispatch_early feature. Nil means every app uses orchestrator.
	early    *orchestrator.Orchestrator
	registry *tenant.Registry
}

func NewSafetyHandler(safetyService *services.SafetyService, orch, early *orchestrator.Orchestrator, registry *tenant.Registry) *SafetyHandler {
	return &SafetyHandler{
		safetyService: safetyService,
		orchestrator:  orch,
		early:         early,
		registry:      registry,
	}
}

func (h *SafetyHandler) Analyze(c *fiber.Ctx) error {
	in, loc, ok := h.parseInput(c)
	if !ok {
		return nil
	}

	res, err := h.safetyService.Analyze(c.UserContext(), in, loc)
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(res)
}

func (h *SafetyHandler) CheckMessage(c *fiber.Ctx) error {
	in, loc, ok := h.parseInput(c)
	if !ok {
		return nil
	}

	res, err := h.safetyService.CheckMessage(c.UserContext(), in, loc)
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(dto.CheckMessageResponse{
		Blocked:    res.Blocked,
		Skipped:    res.Skipped,
		Assessment: res.Assessment,
		Response:   res.Response,
	})
}

func (h *SafetyHandler) Validate(c *fiber.Ctx) error {
	in, _, ok := h.parseInput(c)
	if !ok {
		return nil
	}

	orch := h.orchestrator
	if h.early != nil && h.registry.HasFeature(in.AppID, tenant.FeatureDispatchEarly) {
		orch = h.early
	}

	decision, err := orch.Run(c.UserContext(), orchestrator.Request{
		AppID:       in.AppID,
		UserID:      in.UserID,
		CoupleID:    in.CoupleID,
		MessageType: in.MessageType,
		Text:        in.Text,
		History:     in.ConversationHistory,
		Behavior:    in.Behavior,
		Preferences: in.Preferences,
	})
	if err != nil {
		return analysisError(c, err)
	}
	return c.JSON(decision)
}

func (h *SafetyHandler) Resources(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var categories []safety.Category
	if raw := c.Query("categories"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			cat := safety.Category(strings.TrimSpace(part))
			if !cat.Valid() {
				return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
					Error: true, Message: "Unknown category: " + string(cat),
				})
			}
			categories = append(categories, cat)
		}
	}

	var loc *resources.Location
	if country := c.Query("country"); country != "" {
		confidence, err := strconv.ParseFloat(c.Query("confidence", "1"), 64)
		if err != nil || confidence < 0 || confidence > 1 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "confidence must be between 0 and 1",
			})
		}
		loc = &resources.Location{
			CountryCode: country,
			Region:      c.Query("region"),
			City:        c.Query("city"),
			Confidence:  confidence,
		}
	}

	limit, _ := strconv.Atoi(c.Query("limit", "0"))
	if limit < 0 || limit > 50 {
		limit = 0
	}

	ranked, fellBack := h.safetyService.FindResources(c.UserContext(), appID, userID, categories, loc, resources.MatchOptions{
		PrioritizeCrisis: c.QueryBool("crisis", false),
		PreferDiscreet:   c.QueryBool("discreet", false),
		Limit:            limit,
	})
	return c.JSON(dto.ResourcesResponse{Resources: ranked, Fallback: fellBack})
}

func (h *SafetyHandler) Resource(c *fiber.Ctx) error {
	res, ok := h.safetyService.GetResource(c.UserContext(), c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Resource not found",
		})
	}
	return c.JSON(res)
}

func (h *SafetyHandler) Transparency(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entries, err := h.safetyService.ListTransparency(c.UserContext(), appID, userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch transparency log",
		})
	}
	return c.JSON(dto.TransparencyResponse{Entries: entries})
}

func (h *SafetyHandler) Acknowledge(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid entry ID",
		})
	}

	if err := h.safetyService.AcknowledgeTransparency(c.UserContext(), appID, userID, id); err != nil {
		if errors.Is(err, transparency.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to acknowledge entry",
		})
	}
	return c.JSON(fiber.Map{"message": "Entry acknowledged"})
}

func (h *SafetyHandler) GetPreferences(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	prefs, err := h.safetyService.GetPreferences(c.UserContext(), appID, userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch preferences",
		})
	}
	return c.JSON(prefs)
}

func (h *SafetyHandler) UpdatePreferences(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req safety.Preferences
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if req.ConsentLevel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "consent_level is required",
		})
	}

	prefs, err := h.safetyService.UpdatePreferences(c.UserContext(), appID, userID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to save preferences",
		})
	}
	return c.JSON(prefs)
}

// parseInput reads the caller identity and the shared analyze body. When
// it returns false the error response has already been written.
func (h *SafetyHandler) parseInput(c *fiber.Ctx) (safety.Input, *resources.Location, bool) {
	appID := tenant.GetAppID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
		return safety.Input{}, nil, false
	}

	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
		return safety.Input{}, nil, false
	}

	in := safety.Input{
		AppID:               appID,
		UserID:              userID,
		CoupleID:            req.CoupleID,
		MessageType:         req.MessageType,
		Text:                req.Text,
		ConversationHistory: req.ConversationHistory,
		Behavior:            req.Behavior,
	}
	if req.Preferences != nil {
		in.Preferences = *req.Preferences
	}
	return in, req.Location, true
}

func analysisError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Analysis was interrupted",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Analysis failed",
		})
	}
}
