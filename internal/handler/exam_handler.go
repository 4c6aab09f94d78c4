package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/service"
	"github.com/noah-isme/gema-exam-api/internal/utils"
)

// ExamHandler wires exam lifecycle routes.
type ExamHandler struct {
	service service.ExamService
	logger  zerolog.Logger
}

// NewExamHandler constructs the handler.
func NewExamHandler(service service.ExamService, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		service: service,
		logger:  logger.With().Str("component", "exam_handler").Logger(),
	}
}

// Register attaches exam endpoints to the router group.
func (h *ExamHandler) Register(router fiber.Router) {
	router.Get("/exams", h.list)
	router.Post("/exams", middleware.RequireRole(authz.RoleTeacher, authz.RoleAdmin), h.create)
	router.Get("/exams/:id", h.get)
	router.Patch("/exams/:id", h.update)
	router.Delete("/exams/:id", h.delete)
	router.Post("/exams/:id/start", h.start)
	router.Post("/exams/:id/finish", h.finish)
	router.Post("/exams/:id/owners", h.addOwner)
	router.Delete("/exams/:id/owners/:ownerId", h.removeOwner)
}

func (h *ExamHandler) list(c *fiber.Ctx) error {
	exams, err := h.service.ListExams(requestContext(c), middleware.CallerFromCtx(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, dto.NewExamResponses(exams), "exams retrieved", fiber.Map{"count": len(exams)})
}

func (h *ExamHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exam, found, err := h.service.GetExam(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if !found {
		return utils.SendError(c, fiber.StatusNotFound, "exam not found")
	}
	return utils.SendSuccess(c, "exam retrieved", dto.NewExamResponse(exam))
}

func (h *ExamHandler) create(c *fiber.Ctx) error {
	var payload dto.ExamCreateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	exam, err := h.service.CreateExam(requestContext(c), middleware.CallerFromCtx(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam created", dto.NewExamResponse(exam))
}

func (h *ExamHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ExamUpdateRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	exam, err := h.service.ModifyExam(requestContext(c), middleware.CallerFromCtx(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam updated", dto.NewExamResponse(exam))
}

func (h *ExamHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteExam(requestContext(c), middleware.CallerFromCtx(c), id); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam deleted", fiber.Map{"id": id})
}

func (h *ExamHandler) start(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exam, err := h.service.StartExam(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam started", dto.NewExamResponse(exam))
}

func (h *ExamHandler) finish(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exam, err := h.service.FinishExam(requestContext(c), middleware.CallerFromCtx(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "exam finished", dto.NewExamResponse(exam))
}

func (h *ExamHandler) addOwner(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ExamOwnerRequest
	if err := bindJSON(c, &payload); err != nil {
		return respondError(c, h.logger, err)
	}

	exam, err := h.service.AddOwnerToExam(requestContext(c), middleware.CallerFromCtx(c), id, payload.OwnerID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "owner added", dto.NewExamResponse(exam))
}

func (h *ExamHandler) removeOwner(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	ownerID, err := parseUintParam(c, "ownerId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exam, err := h.service.RemoveOwnerFromExam(requestContext(c), middleware.CallerFromCtx(c), id, ownerID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "owner removed", dto.NewExamResponse(exam))
}
