package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

const (
	streamSolutionKey = "stream_solution_id"
	streamCallerKey   = "stream_caller"
)

// ResultStreamMessage is written to result stream websockets.
type ResultStreamMessage struct {
	Type    string               `json:"type"`
	Results []dto.ResultResponse `json:"results,omitempty"`
	Result  *dto.ResultResponse  `json:"result,omitempty"`
}

// ResultHandler wires result inspection, retry and live stream routes.
type ResultHandler struct {
	service      service.ResultService
	feed         service.ResultFeed
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(service service.ResultService, feed service.ResultFeed, pingInterval time.Duration, logger zerolog.Logger) *ResultHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &ResultHandler{
		service:      service,
		feed:         feed,
		pingInterval: pingInterval,
		logger:       logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches result endpoints to the router group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Get("/solutions/:id/results/ws", h.upgrade, websocket.New(h.stream))
	router.Get("/solutions/:id/results", h.list)
	router.Post("/solutions/:id/results/retry", h.retryAll)
	router.Get("/solutions/:id/results/:testCaseId", h.get)
	router.Post("/solutions/:id/results/:testCaseId/retry", h.retryOne)
}

func (h *ResultHandler) list(c *fiber.Ctx) error {
	solutionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.service.GetResultsForSolution(requestContext(c), middleware.CallerFromCtx(c), solutionID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "results retrieved", dto.NewResultResponses(results))
}

func (h *ResultHandler) get(c *fiber.Ctx) error {
	solutionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, found, err := h.service.GetResultFor(requestContext(c), middleware.CallerFromCtx(c), solutionID, testCaseID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "result not found")
	}
	return utils.SendSuccess(c, "result retrieved", dto.NewResultResponse(result))
}

func (h *ResultHandler) retryAll(c *fiber.Ctx) error {
	solutionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.RetryForSolution(requestContext(c), middleware.CallerFromCtx(c), solutionID); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "retry requested", fiber.Map{"solution_id": solutionID})
}

func (h *ResultHandler) retryOne(c *fiber.Ctx) error {
	solutionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	testCaseID, err := parseUintParam(c, "testCaseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.RetryForSolutionAndTestCase(requestContext(c), middleware.CallerFromCtx(c), solutionID, testCaseID); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "retry requested", fiber.Map{
		"solution_id":  solutionID,
		"test_case_id": testCaseID,
	})
}

// upgrade authorizes the stream before switching protocols.
func (h *ResultHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}

	solutionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	caller := middleware.CallerFromCtx(c)
	if _, err := h.service.GetResultsForSolution(requestContext(c), caller, solutionID); err != nil {
		return respondError(c, h.logger, err)
	}

	c.Locals(streamSolutionKey, solutionID)
	c.Locals(streamCallerKey, caller)
	return c.Next()
}

func (h *ResultHandler) stream(conn *websocket.Conn) {
	solutionID, _ := conn.Locals(streamSolutionKey).(uint)
	caller, _ := conn.Locals(streamCallerKey).(authz.Caller)
	logger := h.logger.With().Uint("solution_id", solutionID).Uint("caller_id", caller.ID).Logger()

	updates, unsubscribe := h.feed.Subscribe(solutionID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := h.service.GetResultsForSolution(ctx, caller, solutionID)
	if err != nil {
		logger.Warn().Err(err).Msg("result stream snapshot failed")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot failed"))
		return
	}
	if err := conn.WriteJSON(ResultStreamMessage{Type: "snapshot", Results: dto.NewResultResponses(results)}); err != nil {
		logger.Debug().Err(err).Msg("failed to write result snapshot")
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("result stream connected")
	defer logger.Info().Msg("result stream disconnected")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case result := <-updates:
			if err := conn.WriteJSON(ResultStreamMessage{Type: "result", Result: &result}); err != nil {
				logger.Debug().Err(err).Msg("failed to write result event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				logger.Debug().Err(err).Msg("result stream ping failed")
				return
			}
		}
	}
}
