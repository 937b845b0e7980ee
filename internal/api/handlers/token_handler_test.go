package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/podcast-studio/configs"
	"github.com/maheshrc27/podcast-studio/internal/api/middleware"
	"github.com/maheshrc27/podcast-studio/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenApp(cfg config.Config) *fiber.App {
	app := fiber.New()
	api := app.Group("/api")
	api.Use(middleware.NewAuthMiddleware(cfg).AuthMiddleware())
	api.Post("/tokens", NewTokenHandler(cfg).Issue)
	return app
}

func issue(t *testing.T, app *fiber.App, header, value, body string) (int, map[string]string) {
	req := httptest.NewRequest("POST", "/api/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)
	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]string{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestIssueToken(t *testing.T) {
	cfg := config.Config{AdminAPIKey: "admin-key", SecretKey: "s3cret", AdminTokenTTL: time.Hour}
	app := newTokenApp(cfg)

	status, body := issue(t, app, "X-Api-Key", "admin-key", `{"subject":"ops"}`)
	require.Equal(t, fiber.StatusCreated, status)

	claims, err := utils.ValidateToken("s3cret", body["token"])
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.NotEmpty(t, body["expires_at"])

	// The minted token authenticates, but cannot mint another.
	status, _ = issue(t, app, "Authorization", "Bearer "+body["token"], `{"subject":"ops"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = issue(t, app, "X-Api-Key", "admin-key", `{"subject":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	app := newTokenApp(config.Config{AdminAPIKey: "admin-key"})

	status, _ := issue(t, app, "X-Api-Key", "admin-key", `{"subject":"ops"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
