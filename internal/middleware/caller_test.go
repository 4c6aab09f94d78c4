package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
)

func TestRequireCallerBindsIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(10))
		c.Locals("user_role", "Teacher")
		return c.Next()
	})
	app.Use(middleware.RequireCaller())

	var seen authz.Caller
	app.Get("/", func(c *fiber.Ctx) error {
		seen = middleware.CallerFromCtx(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp := perform(t, app)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, authz.Caller{ID: 10, Role: authz.RoleTeacher}, seen)
}

func TestRequireCallerRejectsAnonymous(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.RequireCaller())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp := perform(t, app)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCallerFromCtxWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		require.False(t, middleware.CallerFromCtx(c).IsAuthenticated())
		return c.SendStatus(fiber.StatusOK)
	})

	resp := perform(t, app)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
