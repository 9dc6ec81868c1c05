package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/services"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func (h *ReviewHandler) ListCases(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	if limit > 100 {
		limit = 100
	}

	cases, total, err := h.reviewService.ListReviewCases(c.UserContext(), appID, status, limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReviewStatus) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch review cases",
		})
	}

	return c.JSON(fiber.Map{
		"cases":  cases,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *ReviewHandler) ActionCase(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid review case ID",
		})
	}

	var req dto.ActionReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	err = h.reviewService.ActionReviewCase(c.UserContext(), appID, caseID, req.Status, req.Note, middleware.AdminIdentity(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReviewNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrInvalidReviewStatus):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update review case",
		})
	}

	return c.JSON(fiber.Map{"message": "Review case updated successfully"})
}
