package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExerciseService manages the exercises of an exam.
type ExerciseService interface {
	ListExercises(ctx context.Context, caller authz.Caller, examID uint) ([]models.Exercise, error)
	GetExercise(ctx context.Context, caller authz.Caller, id uint) (models.Exercise, bool, error)
	CreateExercise(ctx context.Context, caller authz.Caller, examID uint, payload dto.ExerciseCreateRequest) (models.Exercise, error)
	ModifyExercise(ctx context.Context, caller authz.Caller, id uint, payload dto.ExerciseUpdateRequest) (models.Exercise, error)
	DeleteExercise(ctx context.Context, caller authz.Caller, id uint) error
}

type exerciseService struct {
	repos     CatalogRepositories
	policy    authz.Policy
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewExerciseService constructs the exercise service.
func NewExerciseService(repos CatalogRepositories, policy authz.Policy, validate *validator.Validate, logger zerolog.Logger) ExerciseService {
	return &exerciseService{
		repos:     repos,
		policy:    policy,
		validator: validate,
		sanitizer: newTextPolicy(),
		logger:    logger.With().Str("component", "exercise_service").Logger(),
	}
}

func (s *exerciseService) ListExercises(ctx context.Context, caller authz.Caller, examID uint) ([]models.Exercise, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpListExercises, authz.Exam(examID)); err != nil {
		return nil, err
	}
	if _, err := loadExam(ctx, s.repos.Exams, examID); err != nil {
		return nil, err
	}
	return s.repos.Exercises.ListByExam(ctx, examID)
}

func (s *exerciseService) GetExercise(ctx context.Context, caller authz.Caller, id uint) (models.Exercise, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewExercise, authz.Exercise(id)); err != nil {
		return models.Exercise{}, false, err
	}
	exercise, err := s.repos.Exercises.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Exercise{}, false, nil
		}
		return models.Exercise{}, false, err
	}
	return exercise, true, nil
}

func (s *exerciseService) CreateExercise(ctx context.Context, caller authz.Caller, examID uint, payload dto.ExerciseCreateRequest) (models.Exercise, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpCreateExercise, authz.Exam(examID)); err != nil {
		return models.Exercise{}, err
	}

	payload.Question = sanitizeText(s.sanitizer, payload.Question)
	if err := validatePayload(s.validator, payload); err != nil {
		return models.Exercise{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, examID)
	if err != nil {
		return models.Exercise{}, err
	}
	if err := requireUpcoming(exam); err != nil {
		return models.Exercise{}, err
	}

	exercise, err := models.NewExercise(exam.ID, payload.Question, payload.Language, payload.SolutionTemplate, payload.AwardedScore)
	if err != nil {
		return models.Exercise{}, err
	}
	if err := s.repos.Exercises.Create(ctx, &exercise); err != nil {
		return models.Exercise{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Uint("exercise_id", exercise.ID).Msg("exercise created")
	return exercise, nil
}

func (s *exerciseService) ModifyExercise(ctx context.Context, caller authz.Caller, id uint, payload dto.ExerciseUpdateRequest) (models.Exercise, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpModifyExercise, authz.Exercise(id)); err != nil {
		return models.Exercise{}, err
	}
	if payload.Question != nil {
		question := sanitizeText(s.sanitizer, *payload.Question)
		payload.Question = &question
	}
	if err := validatePayload(s.validator, payload); err != nil {
		return models.Exercise{}, err
	}

	exercise, err := loadExercise(ctx, s.repos.Exercises, id)
	if err != nil {
		return models.Exercise{}, err
	}
	exam, err := loadExam(ctx, s.repos.Exams, exercise.ExamID)
	if err != nil {
		return models.Exercise{}, err
	}
	if err := requireUpcoming(exam); err != nil {
		return models.Exercise{}, err
	}

	if payload.Question != nil {
		if err := exercise.SetQuestion(*payload.Question); err != nil {
			return models.Exercise{}, err
		}
	}
	if payload.Language != nil {
		if err := exercise.SetLanguage(*payload.Language); err != nil {
			return models.Exercise{}, err
		}
	}
	if payload.SolutionTemplate != nil {
		exercise.SolutionTemplate = *payload.SolutionTemplate
	}
	if payload.AwardedScore != nil {
		if err := exercise.SetAwardedScore(*payload.AwardedScore); err != nil {
			return models.Exercise{}, err
		}
	}

	if err := s.repos.Exercises.Update(ctx, &exercise); err != nil {
		return models.Exercise{}, err
	}
	return exercise, nil
}

func (s *exerciseService) DeleteExercise(ctx context.Context, caller authz.Caller, id uint) error {
	if err := s.policy.Authorize(ctx, caller, authz.OpDeleteExercise, authz.Exercise(id)); err != nil {
		return err
	}

	exercise, err := s.repos.Exercises.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	exam, err := loadExam(ctx, s.repos.Exams, exercise.ExamID)
	if err != nil {
		return err
	}
	if err := requireUpcoming(exam); err != nil {
		return err
	}
	return s.repos.Exercises.DeleteCascade(ctx, exercise.ID)
}
