package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// recordingBus delivers through a LocalBus and remembers every published event.
type recordingBus struct {
	*events.LocalBus

	mu        sync.Mutex
	published []events.Event
	failures  map[events.Topic]error
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		LocalBus: events.NewLocalBus(zerolog.Nop()),
		failures: make(map[events.Topic]error),
	}
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	failure := b.failures[event.Topic()]
	b.mu.Unlock()

	if failure != nil {
		return failure
	}
	return b.LocalBus.Publish(ctx, event)
}

func (b *recordingBus) failTopic(topic events.Topic, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[topic] = err
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

func (b *recordingBus) executionRequests() []events.ExecutionRequested {
	b.mu.Lock()
	defer b.mu.Unlock()
	var requests []events.ExecutionRequested
	for _, event := range b.published {
		if request, ok := event.(events.ExecutionRequested); ok {
			requests = append(requests, request)
		}
	}
	return requests
}

func (b *recordingBus) recorded() []events.ResultRecorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	var recorded []events.ResultRecorded
	for _, event := range b.published {
		if result, ok := event.(events.ResultRecorded); ok {
			recorded = append(recorded, result)
		}
	}
	return recorded
}

type examFixture struct {
	db        *gorm.DB
	bus       *recordingBus
	exams     ExamService
	exercises ExerciseService
	testCases TestCaseService
	solutions SolutionService
	results   ResultService
	teacher   authz.Caller
	student   authz.Caller
	admin     authz.Caller
}

func newExamFixture(t *testing.T) examFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))

	examRepo := repository.NewExamRepository(db)
	exerciseRepo := repository.NewExerciseRepository(db)
	testCaseRepo := repository.NewTestCaseRepository(db)
	submissionRepo := repository.NewSolutionSubmissionRepository(db)
	solutionRepo := repository.NewExerciseSolutionRepository(db)
	resultRepo := repository.NewSolutionResultRepository(db)

	policy := authz.NewRolePolicy(authz.RolePolicyRepositories{
		Exams:       examRepo,
		Exercises:   exerciseRepo,
		TestCases:   testCaseRepo,
		Submissions: submissionRepo,
		Solutions:   solutionRepo,
	})
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()
	bus := newRecordingBus()
	catalog := CatalogRepositories{Exams: examRepo, Exercises: exerciseRepo, TestCases: testCaseRepo}

	return examFixture{
		db:        db,
		bus:       bus,
		exams:     NewExamService(catalog, policy, validate, logger),
		exercises: NewExerciseService(catalog, policy, validate, logger),
		testCases: NewTestCaseService(catalog, policy, validate, logger),
		solutions: NewSolutionService(SolutionRepositories{
			Exams:       examRepo,
			Exercises:   exerciseRepo,
			Submissions: submissionRepo,
			Solutions:   solutionRepo,
		}, policy, bus, validate, logger),
		results: NewResultService(ResultRepositories{
			Exercises:   exerciseRepo,
			TestCases:   testCaseRepo,
			Submissions: submissionRepo,
			Solutions:   solutionRepo,
			Results:     resultRepo,
		}, policy, bus, logger),
		teacher: authz.NewCaller(1, authz.RoleTeacher),
		student: authz.NewCaller(50, authz.RoleStudent),
		admin:   authz.NewCaller(99, authz.RoleAdmin),
	}
}

func (fx examFixture) createExam(t *testing.T) models.Exam {
	t.Helper()
	exam, err := fx.exams.CreateExam(context.Background(), fx.teacher, dto.ExamCreateRequest{
		Description:     "Programming fundamentals",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 120,
	})
	require.NoError(t, err)
	return exam
}

func (fx examFixture) createExercise(t *testing.T, examID uint) models.Exercise {
	t.Helper()
	exercise, err := fx.exercises.CreateExercise(context.Background(), fx.teacher, examID, dto.ExerciseCreateRequest{
		Question:     "Add two numbers read from stdin",
		Language:     "python",
		AwardedScore: 10,
	})
	require.NoError(t, err)
	return exercise
}

func (fx examFixture) createTestCase(t *testing.T, exerciseID uint, visibility string, input, expected []string) models.TestCase {
	t.Helper()
	testCase, err := fx.testCases.CreateTestCase(context.Background(), fx.teacher, exerciseID, dto.TestCaseCreateRequest{
		Visibility:          visibility,
		TimeoutMillis:       2000,
		InputLines:          input,
		ExpectedOutputLines: expected,
	})
	require.NoError(t, err)
	return testCase
}

// startedExam builds an in-progress exam with one exercise holding two private test cases.
func (fx examFixture) startedExam(t *testing.T) (models.Exam, models.Exercise, []models.TestCase) {
	t.Helper()
	exam := fx.createExam(t)
	exercise := fx.createExercise(t, exam.ID)
	first := fx.createTestCase(t, exercise.ID, "private", []string{"1 2"}, []string{"3"})
	second := fx.createTestCase(t, exercise.ID, "private", []string{"2 2"}, []string{"4"})

	started, err := fx.exams.StartExam(context.Background(), fx.teacher, exam.ID)
	require.NoError(t, err)
	return started, exercise, []models.TestCase{first, second}
}

// submitAnswer opens a submission for the student, answers its only solution and submits it.
func (fx examFixture) submitAnswer(t *testing.T, examID uint, answer string) (models.ExamSolutionSubmission, models.ExerciseSolution) {
	t.Helper()
	ctx := context.Background()

	submission, err := fx.solutions.CreateExamSolutionSubmission(ctx, fx.student, examID)
	require.NoError(t, err)
	solutions, err := fx.solutions.GetSolutionsForSubmission(ctx, fx.student, submission.ID)
	require.NoError(t, err)
	require.Len(t, solutions, 1)

	solution, err := fx.solutions.ModifySolution(ctx, fx.student, solutions[0].ID, dto.SolutionUpdateRequest{Answer: &answer})
	require.NoError(t, err)

	submitted, err := fx.solutions.SubmitSolutions(ctx, fx.student, submission.ID)
	require.NoError(t, err)
	return submitted, solution
}
