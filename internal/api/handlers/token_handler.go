package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/api/middleware"
	"github.com/maheshrc27/podcast-studio/internal/transfer"
	"github.com/maheshrc27/podcast-studio/pkg/utils"
)

type TokenHandler struct {
	cfg config.Config
}

func NewTokenHandler(cfg config.Config) *TokenHandler {
	return &TokenHandler{cfg: cfg}
}

// Issue mints a bearer token for an operator. Only callers holding the admin
// API key may mint, so a bearer token cannot extend itself.
func (h *TokenHandler) Issue(c *fiber.Ctx) error {
	if c.Locals("auth_method") != middleware.AuthMethodAPIKey {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Tokens can only be issued with the admin API key",
		})
	}
	if h.cfg.SecretKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Bearer tokens are disabled",
		})
	}

	var body transfer.TokenRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse body",
		})
	}
	subject := strings.TrimSpace(body.Subject)
	if subject == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "subject is required",
		})
	}

	expiresAt := time.Now().Add(h.cfg.AdminTokenTTL)
	token, err := utils.GenerateToken(h.cfg.SecretKey, subject, h.cfg.AdminTokenTTL)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
