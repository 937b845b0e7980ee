package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/pkg/utils"
)

// How a request authenticated, stored under the "auth_method" local.
const (
	AuthMethodAPIKey = "api_key"
	AuthMethodBearer = "bearer"
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware admits operators presenting ADMIN_API_KEY (X-Api-Key header
// or api_key query) or a bearer token signed with SECRET_KEY.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-Api-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		bearer, _ := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")

		if apiKey == "" && bearer == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key or bearer token",
			})
		}

		if apiKey != "" {
			if m.cfg.AdminAPIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.cfg.AdminAPIKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid API key",
				})
			}
			c.Locals("subject", "api_key")
			c.Locals("auth_method", AuthMethodAPIKey)
			return c.Next()
		}

		if m.cfg.SecretKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Bearer tokens are not accepted",
			})
		}
		claims, err := utils.ValidateToken(m.cfg.SecretKey, bearer)
		if err != nil {
			slog.Info("Token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("subject", claims.Subject)
		c.Locals("auth_method", AuthMethodBearer)
		return c.Next()
	}
}
