package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// SolutionRepositories groups the stores used by the solution service.
type SolutionRepositories struct {
	Exams       repository.ExamRepository
	Exercises   repository.ExerciseRepository
	Submissions repository.SolutionSubmissionRepository
	Solutions   repository.ExerciseSolutionRepository
}

// SolutionService manages students' exam submissions and the solutions inside them.
type SolutionService interface {
	CreateExamSolutionSubmission(ctx context.Context, caller authz.Caller, examID uint) (models.ExamSolutionSubmission, error)
	GetSolutionSubmissionsForExam(ctx context.Context, caller authz.Caller, examID uint) ([]models.ExamSolutionSubmission, error)
	GetSubmission(ctx context.Context, caller authz.Caller, id uint) (models.ExamSolutionSubmission, bool, error)
	GetSolutionsForSubmission(ctx context.Context, caller authz.Caller, submissionID uint) ([]models.ExerciseSolution, error)
	GetSolution(ctx context.Context, caller authz.Caller, id uint) (models.ExerciseSolution, bool, error)
	SubmitSolutions(ctx context.Context, caller authz.Caller, submissionID uint) (models.ExamSolutionSubmission, error)
	ModifySolution(ctx context.Context, caller authz.Caller, solutionID uint, payload dto.SolutionUpdateRequest) (models.ExerciseSolution, error)
}

type solutionService struct {
	repos     SolutionRepositories
	policy    authz.Policy
	bus       events.Bus
	validator *validator.Validate
	logger    zerolog.Logger
	now       clock
}

// NewSolutionService constructs the solution service.
func NewSolutionService(repos SolutionRepositories, policy authz.Policy, bus events.Bus, validate *validator.Validate, logger zerolog.Logger) SolutionService {
	return &solutionService{
		repos:     repos,
		policy:    policy,
		bus:       bus,
		validator: validate,
		logger:    logger.With().Str("component", "solution_service").Logger(),
		now:       systemClock,
	}
}

// CreateExamSolutionSubmission opens the caller's single attempt at an in-progress exam
// with one empty solution per exercise.
func (s *solutionService) CreateExamSolutionSubmission(ctx context.Context, caller authz.Caller, examID uint) (models.ExamSolutionSubmission, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpCreateSubmission, authz.Exam(examID)); err != nil {
		return models.ExamSolutionSubmission{}, err
	}

	exam, err := loadExam(ctx, s.repos.Exams, examID)
	if err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	if err := requireInProgress(exam); err != nil {
		return models.ExamSolutionSubmission{}, err
	}

	exists, err := s.repos.Submissions.ExistsForSubmitter(ctx, exam.ID, caller.ID)
	if err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	if exists {
		return models.ExamSolutionSubmission{}, duplicateSubmission(exam.ID, caller.ID)
	}

	exercises, err := s.repos.Exercises.ListByExam(ctx, exam.ID)
	if err != nil {
		return models.ExamSolutionSubmission{}, err
	}

	submission := models.ExamSolutionSubmission{
		ExamID:      exam.ID,
		SubmitterID: caller.ID,
		State:       models.SubmissionStateUnplaced,
	}
	solutions := make([]models.ExerciseSolution, 0, len(exercises))
	for _, exercise := range exercises {
		solutions = append(solutions, models.ExerciseSolution{ExerciseID: exercise.ID})
	}
	if err := s.repos.Submissions.CreateWithSolutions(ctx, &submission, solutions); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ExamSolutionSubmission{}, duplicateSubmission(exam.ID, caller.ID)
		}
		return models.ExamSolutionSubmission{}, err
	}

	s.logger.Info().
		Uint("exam_id", exam.ID).
		Uint("submission_id", submission.ID).
		Uint("submitter_id", caller.ID).
		Int("solutions", len(solutions)).
		Msg("submission created")
	return submission, nil
}

func (s *solutionService) GetSolutionSubmissionsForExam(ctx context.Context, caller authz.Caller, examID uint) ([]models.ExamSolutionSubmission, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpListSubmissions, authz.Exam(examID)); err != nil {
		return nil, err
	}
	if _, err := loadExam(ctx, s.repos.Exams, examID); err != nil {
		return nil, err
	}
	return s.repos.Submissions.ListByExam(ctx, examID)
}

func (s *solutionService) GetSubmission(ctx context.Context, caller authz.Caller, id uint) (models.ExamSolutionSubmission, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewSubmission, authz.Submission(id)); err != nil {
		return models.ExamSolutionSubmission{}, false, err
	}
	submission, err := s.repos.Submissions.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.ExamSolutionSubmission{}, false, nil
		}
		return models.ExamSolutionSubmission{}, false, err
	}
	return submission, true, nil
}

func (s *solutionService) GetSolutionsForSubmission(ctx context.Context, caller authz.Caller, submissionID uint) ([]models.ExerciseSolution, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewSubmission, authz.Submission(submissionID)); err != nil {
		return nil, err
	}
	if _, err := loadSubmission(ctx, s.repos.Submissions, submissionID); err != nil {
		return nil, err
	}
	return s.repos.Solutions.ListBySubmission(ctx, submissionID)
}

func (s *solutionService) GetSolution(ctx context.Context, caller authz.Caller, id uint) (models.ExerciseSolution, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewSolution, authz.Solution(id)); err != nil {
		return models.ExerciseSolution{}, false, err
	}
	solution, err := s.repos.Solutions.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return models.ExerciseSolution{}, false, nil
		}
		return models.ExerciseSolution{}, false, err
	}
	return solution, true, nil
}

// SubmitSolutions places the submission and hands it over to grading.
func (s *solutionService) SubmitSolutions(ctx context.Context, caller authz.Caller, submissionID uint) (models.ExamSolutionSubmission, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpSubmitSolutions, authz.Submission(submissionID)); err != nil {
		return models.ExamSolutionSubmission{}, err
	}

	submission, err := loadSubmission(ctx, s.repos.Submissions, submissionID)
	if err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	exam, err := loadExam(ctx, s.repos.Exams, submission.ExamID)
	if err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	if err := requireInProgress(exam); err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	if err := submission.Submit(s.now()); err != nil {
		return models.ExamSolutionSubmission{}, err
	}
	if err := s.repos.Submissions.Update(ctx, &submission); err != nil {
		return models.ExamSolutionSubmission{}, err
	}

	s.logger.Info().Uint("submission_id", submission.ID).Uint("exam_id", exam.ID).Msg("submission placed")

	event := events.SubmissionSubmitted{
		SubmissionID: submission.ID,
		ExamID:       exam.ID,
		SubmitterID:  submission.SubmitterID,
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		return submission, err
	}
	return submission, nil
}

func (s *solutionService) ModifySolution(ctx context.Context, caller authz.Caller, solutionID uint, payload dto.SolutionUpdateRequest) (models.ExerciseSolution, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpModifySolution, authz.Solution(solutionID)); err != nil {
		return models.ExerciseSolution{}, err
	}
	if err := validatePayload(s.validator, payload); err != nil {
		return models.ExerciseSolution{}, err
	}

	solution, err := loadSolution(ctx, s.repos.Solutions, solutionID)
	if err != nil {
		return models.ExerciseSolution{}, err
	}
	submission, err := loadSubmission(ctx, s.repos.Submissions, solution.SubmissionID)
	if err != nil {
		return models.ExerciseSolution{}, err
	}
	exam, err := loadExam(ctx, s.repos.Exams, submission.ExamID)
	if err != nil {
		return models.ExerciseSolution{}, err
	}
	if err := requireInProgress(exam); err != nil {
		return models.ExerciseSolution{}, err
	}
	if !submission.IsUnplaced() {
		return models.ExerciseSolution{}, apperror.IllegalState("submission %d has already been submitted", submission.ID)
	}

	if payload.Answer != nil {
		solution.Answer = *payload.Answer
	}
	if payload.CompilerFlags != nil {
		solution.CompilerFlags = *payload.CompilerFlags
	}
	if payload.MainFileName != nil {
		solution.MainFileName = *payload.MainFileName
	}
	if err := s.repos.Solutions.Update(ctx, &solution); err != nil {
		return models.ExerciseSolution{}, err
	}
	return solution, nil
}

func duplicateSubmission(examID, submitterID uint) error {
	return apperror.UniqueViolation("submitter %d already has a submission for exam %d", submitterID, examID)
}
