package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

const callerLocalsKey = "caller"

// RequireCaller rejects requests without an authenticated user and binds the
// caller identity for handlers.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("user_id").(uint)
		if !ok || userID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		c.Locals(callerLocalsKey, authz.NewCaller(userID, normalizeRoleValue(c.Locals("user_role"))))
		return c.Next()
	}
}

// CallerFromCtx returns the caller bound by RequireCaller, or an anonymous caller.
func CallerFromCtx(c *fiber.Ctx) authz.Caller {
	if caller, ok := c.Locals(callerLocalsKey).(authz.Caller); ok {
		return caller
	}
	return authz.Caller{}
}
