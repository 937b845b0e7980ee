package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/podcast-studio/internal/models"
	"github.com/maheshrc27/podcast-studio/internal/service"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
)

type CallbackHandler struct {
	s service.CallbackService
}

func NewCallbackHandler(service service.CallbackService) *CallbackHandler {
	return &CallbackHandler{s: service}
}

// Handle returns the webhook endpoint for lane. It is mounted for every
// method so anything but POST gets 405 rather than 404.
func (h *CallbackHandler) Handle(lane models.Lane) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			c.Set(fiber.HeaderAllow, fiber.MethodPost)
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"error": "Method not allowed",
			})
		}

		var payload transfer.CallbackPayload
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			slog.Info("Unable to parse callback body", "lane", lane.Kind, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Body must be a JSON object",
			})
		}

		outcome, err := h.s.Reconcile(c.Context(), lane, &payload, c.Query("token"))
		if err != nil {
			return ErrorResponse(c, err)
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": outcome,
		})
	}
}
