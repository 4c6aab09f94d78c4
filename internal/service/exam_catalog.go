package service

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// CatalogRepositories groups the stores behind the exam catalog.
type CatalogRepositories struct {
	Exams     repository.ExamRepository
	Exercises repository.ExerciseRepository
	TestCases repository.TestCaseRepository
}

func validatePayload(validate *validator.Validate, payload interface{}) error {
	if validate == nil {
		return nil
	}
	return apperror.FromValidation(validate.Struct(payload))
}

// newTextPolicy strips markup from catalog text. Descriptions and questions are
// stored as plain text.
func newTextPolicy() *bluemonday.Policy {
	return bluemonday.StrictPolicy()
}

// sanitizeText removes tags and undoes the entity escaping the policy applies, so
// operators such as < and && survive unchanged.
func sanitizeText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func loadExam(ctx context.Context, repo repository.ExamRepository, id uint) (models.Exam, error) {
	exam, err := repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Exam{}, apperror.NotFound("exam %d", id)
		}
		return models.Exam{}, err
	}
	return exam, nil
}

func loadExercise(ctx context.Context, repo repository.ExerciseRepository, id uint) (models.Exercise, error) {
	exercise, err := repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.Exercise{}, apperror.NotFound("exercise %d", id)
		}
		return models.Exercise{}, err
	}
	return exercise, nil
}

func loadTestCase(ctx context.Context, repo repository.TestCaseRepository, id uint) (models.TestCase, error) {
	testCase, err := repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.TestCase{}, apperror.NotFound("test case %d", id)
		}
		return models.TestCase{}, err
	}
	return testCase, nil
}

func loadSubmission(ctx context.Context, repo repository.SolutionSubmissionRepository, id uint) (models.ExamSolutionSubmission, error) {
	submission, err := repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.ExamSolutionSubmission{}, apperror.NotFound("submission %d", id)
		}
		return models.ExamSolutionSubmission{}, err
	}
	return submission, nil
}

func loadSolution(ctx context.Context, repo repository.ExerciseSolutionRepository, id uint) (models.ExerciseSolution, error) {
	solution, err := repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.ExerciseSolution{}, apperror.NotFound("solution %d", id)
		}
		return models.ExerciseSolution{}, err
	}
	return solution, nil
}

func requireUpcoming(exam models.Exam) error {
	if !exam.IsUpcoming() {
		return apperror.IllegalState("exam %d is %s, structural changes require an upcoming exam", exam.ID, exam.State)
	}
	return nil
}

func requireInProgress(exam models.Exam) error {
	if !exam.IsInProgress() {
		return apperror.IllegalState("exam %d is %s, not in progress", exam.ID, exam.State)
	}
	return nil
}

type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
