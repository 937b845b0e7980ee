package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/podcast-studio/internal/service"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
)

type CatalogHandler struct {
	s service.CatalogService
}

func NewCatalogHandler(service service.CatalogService) *CatalogHandler {
	return &CatalogHandler{s: service}
}

func (h *CatalogHandler) CreateShow(c *fiber.Ctx) error {
	var body transfer.ShowCreation
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	show, err := h.s.CreateShow(c.Context(), &body)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(show)
}

func (h *CatalogHandler) CreateEpisode(c *fiber.Ctx) error {
	showID, ok := ParamID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid show id",
		})
	}

	var body transfer.EpisodeCreation
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	episode, err := h.s.CreateEpisode(c.Context(), showID, &body)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(episode)
}

func (h *CatalogHandler) RenameEpisode(c *fiber.Ctx) error {
	episodeID, ok := ParamID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid episode id",
		})
	}

	var body transfer.EpisodeRename
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}

	episode, err := h.s.RenameEpisode(c.Context(), episodeID, body.Title)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(episode)
}

func (h *CatalogHandler) GetEpisode(c *fiber.Ctx) error {
	episodeID, ok := ParamID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid episode id",
		})
	}

	episode, err := h.s.GetEpisode(c.Context(), episodeID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(episode)
}

func (h *CatalogHandler) RequeueEpisode(c *fiber.Ctx) error {
	episodeID, ok := ParamID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid episode id",
		})
	}

	episode, err := h.s.RequeueEpisode(c.Context(), episodeID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(episode)
}
