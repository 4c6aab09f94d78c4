package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

// TestCaseService manages the test cases grading an exercise.
type TestCaseService interface {
	ListTestCases(ctx context.Context, caller authz.Caller, exerciseID uint) ([]models.TestCase, error)
	GetTestCase(ctx context.Context, caller authz.Caller, id uint) (models.TestCase, bool, error)
	CreateTestCase(ctx context.Context, caller authz.Caller, exerciseID uint, payload dto.TestCaseCreateRequest) (models.TestCase, error)
	ModifyTestCase(ctx context.Context, caller authz.Caller, id uint, payload dto.TestCaseUpdateRequest) (models.TestCase, error)
	DeleteTestCase(ctx context.Context, caller authz.Caller, id uint) error
}

type testCaseService struct {
	repos     CatalogRepositories
	policy    authz.Policy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTestCaseService constructs the test case service.
func NewTestCaseService(repos CatalogRepositories, policy authz.Policy, validate *validator.Validate, logger zerolog.Logger) TestCaseService {
	return &testCaseService{
		repos:     repos,
		policy:    policy,
		validator: validate,
		logger:    logger.With().Str("component", "test_case_service").Logger(),
	}
}

// ListTestCases hides private test cases from callers who may not see them.
func (s *testCaseService) ListTestCases(ctx context.Context, caller authz.Caller, exerciseID uint) ([]models.TestCase, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpListTestCases, authz.Exercise(exerciseID)); err != nil {
		return nil, err
	}
	if _, err := loadExercise(ctx, s.repos.Exercises, exerciseID); err != nil {
		return nil, err
	}

	testCases, err := s.repos.TestCases.ListByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	err = s.policy.Authorize(ctx, caller, authz.OpViewPrivateTestCases, authz.Exercise(exerciseID))
	switch {
	case err == nil:
		return testCases, nil
	case errors.Is(err, apperror.ErrForbidden):
		visible := make([]models.TestCase, 0, len(testCases))
		for _, testCase := range testCases {
			if !testCase.IsPrivate() {
				visible = append(visible, testCase)
			}
		}
		return visible, nil
	default:
		return nil, err
	}
}

func (s *testCaseService) GetTestCase(ctx context.Context, caller authz.Caller, id uint) (models.TestCase, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewTestCase, authz.TestCase(id)); err != nil {
		return models.TestCase{}, false, err
	}
	testCase, err := s.repos.TestCases.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.TestCase{}, false, nil
		}
		return models.TestCase{}, false, err
	}
	return testCase, true, nil
}

func (s *testCaseService) CreateTestCase(ctx context.Context, caller authz.Caller, exerciseID uint, payload dto.TestCaseCreateRequest) (models.TestCase, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpCreateTestCase, authz.Exercise(exerciseID)); err != nil {
		return models.TestCase{}, err
	}
	if err := validatePayload(s.validator, payload); err != nil {
		return models.TestCase{}, err
	}

	exercise, err := loadExercise(ctx, s.repos.Exercises, exerciseID)
	if err != nil {
		return models.TestCase{}, err
	}
	if err := s.requireUpcomingExercise(ctx, exercise); err != nil {
		return models.TestCase{}, err
	}

	testCase, err := models.NewTestCase(exercise.ID, payload.Visibility, payload.Timeout(), payload.ProgramArguments, payload.InputLines, payload.ExpectedOutputLines)
	if err != nil {
		return models.TestCase{}, err
	}
	if err := s.repos.TestCases.Create(ctx, &testCase); err != nil {
		return models.TestCase{}, err
	}
	return testCase, nil
}

func (s *testCaseService) ModifyTestCase(ctx context.Context, caller authz.Caller, id uint, payload dto.TestCaseUpdateRequest) (models.TestCase, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpModifyTestCase, authz.TestCase(id)); err != nil {
		return models.TestCase{}, err
	}
	if err := validatePayload(s.validator, payload); err != nil {
		return models.TestCase{}, err
	}

	testCase, err := loadTestCase(ctx, s.repos.TestCases, id)
	if err != nil {
		return models.TestCase{}, err
	}
	exercise, err := loadExercise(ctx, s.repos.Exercises, testCase.ExerciseID)
	if err != nil {
		return models.TestCase{}, err
	}
	if err := s.requireUpcomingExercise(ctx, exercise); err != nil {
		return models.TestCase{}, err
	}

	if payload.Visibility != nil {
		if err := testCase.SetVisibility(*payload.Visibility); err != nil {
			return models.TestCase{}, err
		}
	}
	if payload.TimeoutMillis != nil {
		if err := testCase.SetTimeout(time.Duration(*payload.TimeoutMillis) * time.Millisecond); err != nil {
			return models.TestCase{}, err
		}
	}
	if payload.ProgramArguments != nil {
		testCase.SetProgramArguments(*payload.ProgramArguments)
	}
	if payload.InputLines != nil {
		testCase.SetInputLines(*payload.InputLines)
	}
	if payload.ExpectedOutputLines != nil {
		testCase.SetExpectedOutputLines(*payload.ExpectedOutputLines)
	}

	if err := s.repos.TestCases.Update(ctx, &testCase); err != nil {
		return models.TestCase{}, err
	}
	return testCase, nil
}

func (s *testCaseService) DeleteTestCase(ctx context.Context, caller authz.Caller, id uint) error {
	if err := s.policy.Authorize(ctx, caller, authz.OpDeleteTestCase, authz.TestCase(id)); err != nil {
		return err
	}

	testCase, err := s.repos.TestCases.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	exercise, err := loadExercise(ctx, s.repos.Exercises, testCase.ExerciseID)
	if err != nil {
		return err
	}
	if err := s.requireUpcomingExercise(ctx, exercise); err != nil {
		return err
	}
	return s.repos.TestCases.Delete(ctx, testCase.ID)
}

func (s *testCaseService) requireUpcomingExercise(ctx context.Context, exercise models.Exercise) error {
	exam, err := loadExam(ctx, s.repos.Exams, exercise.ExamID)
	if err != nil {
		return err
	}
	return requireUpcoming(exam)
}
