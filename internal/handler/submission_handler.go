package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// SubmissionHandler wires exam submission and solution routes.
type SubmissionHandler struct {
	service     service.SolutionService
	submitLimit fiber.Handler
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler. submitLimit guards the submit
// endpoint and may be nil.
func NewSubmissionHandler(service service.SolutionService, submitLimit fiber.Handler, logger zerolog.Logger) *SubmissionHandler {
	if submitLimit == nil {
		submitLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SubmissionHandler{
		service:     service,
		submitLimit: submitLimit,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/exams/:id/submissions", h.create)
	router.Get("/exams/:id/submissions", h.listForExam)
	router.Get("/submissions/:id", h.get)
	router.Get("/submissions/:id/solutions", h.listSolutions)
	router.Post("/submissions/:id/submit", h.submitLimit, h.submit)
	router.Get("/solutions/:id", h.getSolution)
	router.Patch("/solutions/:id", h.updateSolution)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.CreateExamSolutionSubmission(requestContext(c), middleware.CallerFromCtx(c), examID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", dto.NewSubmissionResponse(submission))
}

func (h *SubmissionHandler) listForExam(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.GetSolutionSubmissionsForExam(requestContext(c), middleware.CallerFromCtx(c), examID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, dto.NewSubmissionResponses(submissions), "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, found, err := h.service.GetSubmission(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	}
	return utils.SendSuccess(c, "submission retrieved", dto.NewSubmissionResponse(submission))
}

func (h *SubmissionHandler) listSolutions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	solutions, err := h.service.GetSolutionsForSubmission(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "solutions retrieved", dto.NewSolutionResponses(solutions))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.SubmitSolutions(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().Uint("submission_id", submission.ID).Msg("submission placed")
	return utils.SendSuccess(c, "submission placed", dto.NewSubmissionResponse(submission))
}

func (h *SubmissionHandler) getSolution(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	solution, found, err := h.service.GetSolution(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "solution not found")
	}
	return utils.SendSuccess(c, "solution retrieved", dto.NewSolutionResponse(solution))
}

func (h *SubmissionHandler) updateSolution(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.SolutionUpdateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	solution, err := h.service.ModifySolution(requestContext(c), middleware.CallerFromCtx(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "solution updated", dto.NewSolutionResponse(solution))
}
