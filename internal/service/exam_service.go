package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExamService manages exams and their lifecycle.
type ExamService interface {
	ListExams(ctx context.Context, caller authz.Caller) ([]models.Exam, error)
	GetExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, bool, error)
	CreateExam(ctx context.Context, caller authz.Caller, payload dto.ExamCreateRequest) (models.Exam, error)
	ModifyExam(ctx context.Context, caller authz.Caller, id uint, payload dto.ExamUpdateRequest) (models.Exam, error)
	StartExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, error)
	FinishExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, error)
	DeleteExam(ctx context.Context, caller authz.Caller, id uint) error
	AddOwnerToExam(ctx context.Context, caller authz.Caller, id, ownerID uint) (models.Exam, error)
	RemoveOwnerFromExam(ctx context.Context, caller authz.Caller, id, ownerID uint) (models.Exam, error)
}

type examService struct {
	repos     CatalogRepositories
	policy    authz.Policy
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	now       clock
	logger    zerolog.Logger
}

// NewExamService constructs the exam service.
func NewExamService(repos CatalogRepositories, policy authz.Policy, validate *validator.Validate, logger zerolog.Logger) ExamService {
	return &examService{
		repos:     repos,
		policy:    policy,
		validator: validate,
		sanitizer: newTextPolicy(),
		now:       systemClock,
		logger:    logger.With().Str("component", "exam_service").Logger(),
	}
}

func (s *examService) ListExams(ctx context.Context, caller authz.Caller) ([]models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpListExams, authz.NoResource()); err != nil {
		return nil, err
	}
	return s.repos.Exams.List(ctx)
}

func (s *examService) GetExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewExam, authz.Exam(id)); err != nil {
		return models.Exam{}, false, err
	}
	exam, err := s.repos.Exams.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Exam{}, false, nil
		}
		return models.Exam{}, false, err
	}
	return exam, true, nil
}

func (s *examService) CreateExam(ctx context.Context, caller authz.Caller, payload dto.ExamCreateRequest) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpCreateExam, authz.NoResource()); err != nil {
		return models.Exam{}, err
	}

	payload.Description = sanitizeText(s.sanitizer, payload.Description)
	if err := validatePayload(s.validator, payload); err != nil {
		return models.Exam{}, err
	}

	exam, err := models.NewExam(payload.Description, payload.StartingAt, payload.Duration(), caller.ID, s.now())
	if err != nil {
		return models.Exam{}, err
	}
	if err := s.repos.Exams.Create(ctx, &exam); err != nil {
		return models.Exam{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Uint("owner_id", caller.ID).Msg("exam created")
	return exam, nil
}

func (s *examService) ModifyExam(ctx context.Context, caller authz.Caller, id uint, payload dto.ExamUpdateRequest) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpModifyExam, authz.Exam(id)); err != nil {
		return models.Exam{}, err
	}
	if payload.Description != nil {
		description := sanitizeText(s.sanitizer, *payload.Description)
		payload.Description = &description
	}
	if err := validatePayload(s.validator, payload); err != nil {
		return models.Exam{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, id)
	if err != nil {
		return models.Exam{}, err
	}
	if err := requireUpcoming(exam); err != nil {
		return models.Exam{}, err
	}

	if payload.Description != nil {
		if err := exam.SetDescription(*payload.Description); err != nil {
			return models.Exam{}, err
		}
	}
	if payload.StartingAt != nil {
		if err := exam.SetStartingAt(*payload.StartingAt, s.now()); err != nil {
			return models.Exam{}, err
		}
	}
	if payload.DurationMinutes != nil {
		if err := exam.SetDuration(time.Duration(*payload.DurationMinutes) * time.Minute); err != nil {
			return models.Exam{}, err
		}
	}

	if err := s.repos.Exams.Update(ctx, &exam); err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (s *examService) StartExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpStartExam, authz.Exam(id)); err != nil {
		return models.Exam{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, id)
	if err != nil {
		return models.Exam{}, err
	}

	exercises, err := s.repos.Exercises.ListByExam(ctx, exam.ID)
	if err != nil {
		return models.Exam{}, err
	}
	if len(exercises) == 0 {
		return models.Exam{}, apperror.IllegalState("exam %d does not contain any exercise", exam.ID)
	}
	for _, exercise := range exercises {
		testCases, err := s.repos.TestCases.ListByExercise(ctx, exercise.ID)
		if err != nil {
			return models.Exam{}, err
		}
		if !hasPrivateTestCase(testCases) {
			return models.Exam{}, apperror.IllegalState("exercise %d missing private test case", exercise.ID)
		}
	}

	if err := exam.Start(); err != nil {
		return models.Exam{}, err
	}
	if err := s.repos.Exams.Update(ctx, &exam); err != nil {
		return models.Exam{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Int("exercises", len(exercises)).Msg("exam started")
	return exam, nil
}

func (s *examService) FinishExam(ctx context.Context, caller authz.Caller, id uint) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpFinishExam, authz.Exam(id)); err != nil {
		return models.Exam{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, id)
	if err != nil {
		return models.Exam{}, err
	}
	if err := exam.Finish(); err != nil {
		return models.Exam{}, err
	}
	if err := s.repos.Exams.Update(ctx, &exam); err != nil {
		return models.Exam{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Msg("exam finished")
	return exam, nil
}

func (s *examService) DeleteExam(ctx context.Context, caller authz.Caller, id uint) error {
	if err := s.policy.Authorize(ctx, caller, authz.OpDeleteExam, authz.Exam(id)); err != nil {
		return err
	}

	exam, err := s.repos.Exams.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if err := requireUpcoming(exam); err != nil {
		return err
	}
	return s.repos.Exams.DeleteCascade(ctx, exam.ID)
}

func (s *examService) AddOwnerToExam(ctx context.Context, caller authz.Caller, id, ownerID uint) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpManageExamOwners, authz.Exam(id)); err != nil {
		return models.Exam{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, id)
	if err != nil {
		return models.Exam{}, err
	}
	if err := exam.AddOwner(ownerID); err != nil {
		return models.Exam{}, err
	}
	if err := s.repos.Exams.Update(ctx, &exam); err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (s *examService) RemoveOwnerFromExam(ctx context.Context, caller authz.Caller, id, ownerID uint) (models.Exam, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpManageExamOwners, authz.Exam(id)); err != nil {
		return models.Exam{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, id)
	if err != nil {
		return models.Exam{}, err
	}
	if err := exam.RemoveOwner(ownerID); err != nil {
		return models.Exam{}, err
	}
	if err := s.repos.Exams.Update(ctx, &exam); err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func hasPrivateTestCase(testCases []models.TestCase) bool {
	for _, testCase := range testCases {
		if testCase.IsPrivate() {
			return true
		}
	}
	return false
}
