package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Params(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(value), nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func bindJSON(c *fiber.Ctx, target interface{}) error {
	if err := c.BodyParser(target); err != nil {
		return apperror.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}

// respondError maps domain errors onto the response envelope. Unexpected errors
// are logged and masked.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	status := apperror.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return utils.SendError(c, status, "internal server error")
	}

	var kind string
	for _, candidate := range []error{
		apperror.ErrInvalidArgument,
		apperror.ErrNotFound,
		apperror.ErrIllegalState,
		apperror.ErrUniqueViolation,
		apperror.ErrForbidden,
	} {
		if errors.Is(err, candidate) {
			kind = candidate.Error()
			break
		}
	}
	return utils.Fail(c, status, err.Error(), fiber.Map{"kind": kind})
}
