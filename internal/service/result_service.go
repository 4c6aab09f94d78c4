package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// ResultRepositories groups the stores used by the result service.
type ResultRepositories struct {
	Exercises   repository.ExerciseRepository
	TestCases   repository.TestCaseRepository
	Submissions repository.SolutionSubmissionRepository
	Solutions   repository.ExerciseSolutionRepository
	Results     repository.SolutionResultRepository
}

// ResultService correlates execution responses with result rows and classifies them.
type ResultService interface {
	ExamSolutionSubmitted(ctx context.Context, event events.SubmissionSubmitted) error
	ReceiveExecutionResult(ctx context.Context, event events.ExecutionResultArrived) error
	GetResultsForSolution(ctx context.Context, caller authz.Caller, solutionID uint) ([]models.ExerciseSolutionResult, error)
	GetResultFor(ctx context.Context, caller authz.Caller, solutionID, testCaseID uint) (models.ExerciseSolutionResult, bool, error)
	RetryForSolution(ctx context.Context, caller authz.Caller, solutionID uint) error
	RetryForSolutionAndTestCase(ctx context.Context, caller authz.Caller, solutionID, testCaseID uint) error
}

type resultService struct {
	repos  ResultRepositories
	policy authz.Policy
	bus    events.Bus
	logger zerolog.Logger
	tracer trace.Tracer
	now    clock
}

// NewResultService constructs the result service and subscribes it to submission
// and execution events on bus.
func NewResultService(repos ResultRepositories, policy authz.Policy, bus events.Bus, logger zerolog.Logger) ResultService {
	service := &resultService{
		repos:  repos,
		policy: policy,
		bus:    bus,
		logger: logger.With().Str("component", "result_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-exam-api/internal/service/result"),
		now:    systemClock,
	}

	events.Subscribe(bus, service.ExamSolutionSubmitted)
	events.Subscribe(bus, service.ReceiveExecutionResult)

	return service
}

// ExamSolutionSubmitted creates one result row per (solution, test case) pair of the
// submission. On redelivery marked rows are left alone and rows of an answered
// solution still awaiting an outcome are dispatched again under a new attempt.
func (s *resultService) ExamSolutionSubmitted(ctx context.Context, event events.SubmissionSubmitted) error {
	if event.SubmissionID == 0 {
		return apperror.InvalidArgument("submission reference is required")
	}

	submission, err := s.repos.Submissions.GetByID(ctx, event.SubmissionID)
	if err != nil {
		if isNotFound(err) {
			return apperror.InvalidArgument("submission %d does not exist", event.SubmissionID)
		}
		return err
	}

	solutions, err := s.repos.Solutions.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return err
	}

	for _, solution := range solutions {
		exercise, err := loadExercise(ctx, s.repos.Exercises, solution.ExerciseID)
		if err != nil {
			return err
		}
		testCases, err := s.repos.TestCases.ListByExercise(ctx, exercise.ID)
		if err != nil {
			return err
		}

		for _, testCase := range testCases {
			if err := s.createResult(ctx, solution, testCase, exercise.Language); err != nil {
				return err
			}
		}
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Int("solutions", len(solutions)).
		Msg("submission results initialised")
	return nil
}

func (s *resultService) createResult(ctx context.Context, solution models.ExerciseSolution, testCase models.TestCase, language models.Language) error {
	existing, err := s.repos.Results.GetBySolutionAndTestCase(ctx, solution.ID, testCase.ID)
	if err == nil {
		if existing.IsMarked() || !solution.IsAnswered() {
			return nil
		}
		return s.redispatch(ctx, solution, testCase, language, &existing)
	}
	if !isNotFound(err) {
		return err
	}

	result := models.ExerciseSolutionResult{
		SolutionID: solution.ID,
		TestCaseID: testCase.ID,
	}
	answered := solution.IsAnswered()
	if answered {
		result.Attempt = 1
	} else {
		result.MarkNotAnswered(s.now())
	}

	if err := s.repos.Results.Create(ctx, &result); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}

	if !answered {
		observability.ExecutionResults().WithLabelValues(string(result.Result)).Inc()
		return s.bus.Publish(ctx, events.ResultRecorded{Result: result})
	}
	return s.dispatch(ctx, solution, testCase, language, &result)
}

// dispatch requests an execution for an unmarked row. A refused request marks the
// row UNKNOWN_ERROR so a later retry can pick it up again.
func (s *resultService) dispatch(ctx context.Context, solution models.ExerciseSolution, testCase models.TestCase, language models.Language, result *models.ExerciseSolutionResult) error {
	ctx, span := s.tracer.Start(ctx, "results.dispatch", trace.WithAttributes(
		attribute.Int64("result.solution_id", int64(solution.ID)),
		attribute.Int64("result.test_case_id", int64(testCase.ID)),
		attribute.Int64("result.attempt", int64(result.Attempt)),
	))
	defer span.End()

	err := s.bus.Publish(ctx, events.ExecutionRequested{
		Solution: solution,
		TestCase: testCase,
		Language: language,
		Attempt:  result.Attempt,
	})
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "dispatch_failed")
	observability.DispatchFailures().WithLabelValues(string(language)).Inc()
	s.logger.Error().
		Err(err).
		Uint("solution_id", solution.ID).
		Uint("test_case_id", testCase.ID).
		Uint("attempt", result.Attempt).
		Msg("execution dispatch failed")

	result.Mark(models.ResultUnknownError, models.ExecutionOutput{Detail: "dispatch failed: " + err.Error()}, s.now())
	updated, err := s.repos.Results.UpdateAtAttempt(ctx, result, result.Attempt)
	if err != nil {
		return err
	}
	if !updated {
		s.logger.Warn().
			Uint("solution_id", solution.ID).
			Uint("test_case_id", testCase.ID).
			Uint("attempt", result.Attempt).
			Msg("result moved to a newer attempt before the dispatch failure was recorded")
		return nil
	}
	observability.ExecutionResults().WithLabelValues(string(result.Result)).Inc()
	return s.bus.Publish(ctx, events.ResultRecorded{Result: *result})
}

// ReceiveExecutionResult classifies a response and marks the row it answers.
// Responses for a superseded attempt are dropped.
func (s *resultService) ReceiveExecutionResult(ctx context.Context, event events.ExecutionResultArrived) error {
	if event.Response == nil {
		return apperror.InvalidArgument("execution response is required")
	}

	ctx, span := s.tracer.Start(ctx, "results.mark", trace.WithAttributes(
		attribute.Int64("result.solution_id", int64(event.Tag.SolutionID)),
		attribute.Int64("result.test_case_id", int64(event.Tag.TestCaseID)),
		attribute.Int64("result.attempt", int64(event.Tag.Attempt)),
		attribute.String("execution.status", string(event.Response.Status)),
	))
	defer span.End()

	result, err := s.repos.Results.GetBySolutionAndTestCase(ctx, event.Tag.SolutionID, event.Tag.TestCaseID)
	if err != nil {
		if isNotFound(err) {
			err = apperror.NotFound("no result for %s", event.Tag)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "result_lookup_failed")
		return err
	}

	if result.Attempt != event.Tag.Attempt {
		s.dropStale(span, event.Tag, result.Attempt)
		return nil
	}

	testCase, err := loadTestCase(ctx, s.repos.TestCases, result.TestCaseID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	outcome := Classify(event.Response, testCase.ExpectedOutputLines)
	result.Mark(outcome, models.ExecutionOutput{
		ExitCode: event.Response.ExitCode,
		Stdout:   event.Response.Stdout,
		Stderr:   event.Response.Stderr,
		Detail:   event.Response.Detail,
	}, s.now())
	updated, err := s.repos.Results.UpdateAtAttempt(ctx, &result, event.Tag.Attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "result_update_failed")
		return err
	}
	if !updated {
		s.dropStale(span, event.Tag, 0)
		return nil
	}

	span.SetAttributes(attribute.String("result.outcome", string(outcome)))
	observability.ExecutionResults().WithLabelValues(string(outcome)).Inc()
	s.logger.Debug().
		Uint("solution_id", result.SolutionID).
		Uint("test_case_id", result.TestCaseID).
		Str("result", string(outcome)).
		Msg("result marked")

	return s.bus.Publish(ctx, events.ResultRecorded{Result: result})
}

// dropStale records a response that no longer answers the row's attempt. current is
// zero when the row moved on between the read and the write.
func (s *resultService) dropStale(span trace.Span, tag execution.Tag, current uint) {
	observability.StaleResponses().Inc()
	span.SetAttributes(attribute.Bool("result.stale", true))
	s.logger.Warn().
		Uint("solution_id", tag.SolutionID).
		Uint("test_case_id", tag.TestCaseID).
		Uint("attempt", tag.Attempt).
		Uint("current_attempt", current).
		Msg("dropping stale execution response")
}

func (s *resultService) GetResultsForSolution(ctx context.Context, caller authz.Caller, solutionID uint) ([]models.ExerciseSolutionResult, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewResults, authz.Solution(solutionID)); err != nil {
		return nil, err
	}
	if _, err := s.submittedSolution(ctx, solutionID); err != nil {
		return nil, err
	}
	return s.repos.Results.ListBySolution(ctx, solutionID)
}

func (s *resultService) GetResultFor(ctx context.Context, caller authz.Caller, solutionID, testCaseID uint) (models.ExerciseSolutionResult, bool, error) {
	if err := s.policy.Authorize(ctx, caller, authz.OpViewResults, authz.Solution(solutionID)); err != nil {
		return models.ExerciseSolutionResult{}, false, err
	}
	if _, err := s.submittedSolution(ctx, solutionID); err != nil {
		return models.ExerciseSolutionResult{}, false, err
	}

	result, err := s.repos.Results.GetBySolutionAndTestCase(ctx, solutionID, testCaseID)
	if err != nil {
		if isNotFound(err) {
			return models.ExerciseSolutionResult{}, false, nil
		}
		return models.ExerciseSolutionResult{}, false, err
	}
	return result, true, nil
}

// RetryForSolution re-dispatches every marked result of the solution. Rows still in
// flight are not touched.
func (s *resultService) RetryForSolution(ctx context.Context, caller authz.Caller, solutionID uint) error {
	if err := s.policy.Authorize(ctx, caller, authz.OpRetryResults, authz.Solution(solutionID)); err != nil {
		return err
	}

	solution, err := s.submittedSolution(ctx, solutionID)
	if err != nil {
		return err
	}
	if !solution.IsAnswered() {
		return nil
	}

	exercise, err := loadExercise(ctx, s.repos.Exercises, solution.ExerciseID)
	if err != nil {
		return err
	}
	testCases, err := s.repos.TestCases.ListByExercise(ctx, exercise.ID)
	if err != nil {
		return err
	}
	byID := make(map[uint]models.TestCase, len(testCases))
	for _, testCase := range testCases {
		byID[testCase.ID] = testCase
	}

	results, err := s.repos.Results.ListBySolution(ctx, solution.ID)
	if err != nil {
		return err
	}

	retried := 0
	for i := range results {
		result := &results[i]
		if !result.IsMarked() {
			continue
		}
		testCase, ok := byID[result.TestCaseID]
		if !ok {
			s.logger.Warn().Uint("solution_id", solution.ID).Uint("test_case_id", result.TestCaseID).Msg("result refers to a missing test case")
			continue
		}
		if err := s.redispatch(ctx, solution, testCase, exercise.Language, result); err != nil {
			return err
		}
		retried++
	}

	s.logger.Info().Uint("solution_id", solution.ID).Int("retried", retried).Msg("solution results retried")
	return nil
}

func (s *resultService) RetryForSolutionAndTestCase(ctx context.Context, caller authz.Caller, solutionID, testCaseID uint) error {
	if err := s.policy.Authorize(ctx, caller, authz.OpRetryResults, authz.Solution(solutionID)); err != nil {
		return err
	}

	solution, err := loadSolution(ctx, s.repos.Solutions, solutionID)
	if err != nil {
		return err
	}
	testCase, err := loadTestCase(ctx, s.repos.TestCases, testCaseID)
	if err != nil {
		return err
	}
	if testCase.ExerciseID != solution.ExerciseID {
		return apperror.NotFound("test case %d does not belong to the exercise of solution %d", testCase.ID, solution.ID)
	}
	result, err := s.repos.Results.GetBySolutionAndTestCase(ctx, solution.ID, testCase.ID)
	if err != nil {
		if isNotFound(err) {
			return apperror.NotFound("no result for solution %d and test case %d", solution.ID, testCase.ID)
		}
		return err
	}
	if err := s.requireSubmitted(ctx, solution); err != nil {
		return err
	}

	if !result.IsMarked() || !solution.IsAnswered() {
		return nil
	}

	exercise, err := loadExercise(ctx, s.repos.Exercises, solution.ExerciseID)
	if err != nil {
		return err
	}
	return s.redispatch(ctx, solution, testCase, exercise.Language, &result)
}

// redispatch moves the row to a new attempt and requests an execution for it. A row
// that another caller already moved on is left to that caller.
func (s *resultService) redispatch(ctx context.Context, solution models.ExerciseSolution, testCase models.TestCase, language models.Language, result *models.ExerciseSolutionResult) error {
	previous := result.Attempt
	result.Unmark()
	updated, err := s.repos.Results.UpdateAtAttempt(ctx, result, previous)
	if err != nil {
		return err
	}
	if !updated {
		s.logger.Debug().
			Uint("solution_id", solution.ID).
			Uint("test_case_id", testCase.ID).
			Uint("attempt", previous).
			Msg("result already moved to a newer attempt")
		return nil
	}
	return s.dispatch(ctx, solution, testCase, language, result)
}

func (s *resultService) submittedSolution(ctx context.Context, solutionID uint) (models.ExerciseSolution, error) {
	solution, err := loadSolution(ctx, s.repos.Solutions, solutionID)
	if err != nil {
		return models.ExerciseSolution{}, err
	}
	if err := s.requireSubmitted(ctx, solution); err != nil {
		return models.ExerciseSolution{}, err
	}
	return solution, nil
}

func (s *resultService) requireSubmitted(ctx context.Context, solution models.ExerciseSolution) error {
	submission, err := loadSubmission(ctx, s.repos.Submissions, solution.SubmissionID)
	if err != nil {
		return err
	}
	if !submission.IsSubmitted() {
		return apperror.IllegalState("submission %d has not been submitted", submission.ID)
	}
	return nil
}

// Classify maps an execution response to a result outcome.
func Classify(response *execution.Response, expected []string) models.ResultOutcome {
	switch response.Status {
	case execution.StatusCompleted:
		if response.ExitCode != nil && *response.ExitCode == 0 &&
			response.Stderr == "" &&
			OutputMatches(response.Stdout, expected) {
			return models.ResultApproved
		}
		return models.ResultFailed
	case execution.StatusTimeout:
		return models.ResultTimedOut
	case execution.StatusCompileError:
		return models.ResultNotCompiled
	case execution.StatusInitializationError:
		return models.ResultInitializationError
	default:
		return models.ResultUnknownError
	}
}

// OutputMatches compares stdout with the expected lines, ignoring CRLF line endings
// and trailing newlines.
func OutputMatches(stdout string, expected []string) bool {
	actual := outputLines(stdout)
	wanted := outputLines(strings.Join(expected, "\n"))
	if len(actual) != len(wanted) {
		return false
	}
	for i := range actual {
		if actual[i] != wanted[i] {
			return false
		}
	}
	return true
}

func outputLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
