package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ExerciseHandler wires exercise and test case routes.
type ExerciseHandler struct {
	exercises service.ExerciseService
	testCases service.TestCaseService
	logger    zerolog.Logger
}

// NewExerciseHandler constructs the handler.
func NewExerciseHandler(exercises service.ExerciseService, testCases service.TestCaseService, logger zerolog.Logger) *ExerciseHandler {
	return &ExerciseHandler{
		exercises: exercises,
		testCases: testCases,
		logger:    logger.With().Str("component", "exercise_handler").Logger(),
	}
}

// Register attaches exercise and test case endpoints to the router group.
func (h *ExerciseHandler) Register(router fiber.Router) {
	router.Get("/exams/:id/exercises", h.list)
	router.Post("/exams/:id/exercises", h.create)
	router.Get("/exercises/:id", h.get)
	router.Patch("/exercises/:id", h.update)
	router.Delete("/exercises/:id", h.delete)

	router.Get("/exercises/:id/test-cases", h.listTestCases)
	router.Post("/exercises/:id/test-cases", h.createTestCase)
	router.Get("/test-cases/:id", h.getTestCase)
	router.Patch("/test-cases/:id", h.updateTestCase)
	router.Delete("/test-cases/:id", h.deleteTestCase)
}

func (h *ExerciseHandler) list(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exercises, err := h.exercises.ListExercises(requestContext(c), middleware.CallerFromCtx(c), examID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exercises retrieved", dto.NewExerciseResponses(exercises))
}

func (h *ExerciseHandler) create(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ExerciseCreateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	exercise, err := h.exercises.CreateExercise(requestContext(c), middleware.CallerFromCtx(c), examID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exercise created", dto.NewExerciseResponse(exercise))
}

func (h *ExerciseHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exercise, found, err := h.exercises.GetExercise(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
	}
	return utils.SendSuccess(c, "exercise retrieved", dto.NewExerciseResponse(exercise))
}

func (h *ExerciseHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ExerciseUpdateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	exercise, err := h.exercises.ModifyExercise(requestContext(c), middleware.CallerFromCtx(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exercise updated", dto.NewExerciseResponse(exercise))
}

func (h *ExerciseHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.exercises.DeleteExercise(requestContext(c), middleware.CallerFromCtx(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exercise deleted", fiber.Map{"id": id})
}

func (h *ExerciseHandler) listTestCases(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	testCases, err := h.testCases.ListTestCases(requestContext(c), middleware.CallerFromCtx(c), exerciseID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "test cases retrieved", dto.NewTestCaseResponses(testCases))
}

func (h *ExerciseHandler) createTestCase(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.TestCaseCreateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	testCase, err := h.testCases.CreateTestCase(requestContext(c), middleware.CallerFromCtx(c), exerciseID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test case created", dto.NewTestCaseResponse(testCase))
}

func (h *ExerciseHandler) getTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	testCase, found, err := h.testCases.GetTestCase(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "test case not found")
	}
	return utils.SendSuccess(c, "test case retrieved", dto.NewTestCaseResponse(testCase))
}

func (h *ExerciseHandler) updateTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.TestCaseUpdateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	testCase, err := h.testCases.ModifyTestCase(requestContext(c), middleware.CallerFromCtx(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "test case updated", dto.NewTestCaseResponse(testCase))
}

func (h *ExerciseHandler) deleteTestCase(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.testCases.DeleteTestCase(requestContext(c), middleware.CallerFromCtx(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "test case deleted", fiber.Map{"id": id})
}
