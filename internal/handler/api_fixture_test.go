package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
	"github.com/noah-isme/gema-exam-api/internal/router"
	"github.com/noah-isme/gema-exam-api/internal/service"
)

const testJWTSecret = "handler-test-secret"

var (
	teacher = authz.NewCaller(1, authz.RoleTeacher)
	student = authz.NewCaller(50, authz.RoleStudent)
	other   = authz.NewCaller(51, authz.RoleStudent)
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details map[string]any  `json:"details"`
}

type apiFixture struct {
	app      *fiber.App
	bus      *events.LocalBus
	services service.Services
	feed     service.ResultFeed
}

// newAPIFixture serves the full router over sqlite. Identity comes from the
// X-Test-User and X-Test-Role headers unless useJWT is set.
func newAPIFixture(t *testing.T, useJWT bool) apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	bus := events.NewLocalBus(logger)
	services := service.NewServices(db, bus, validate, logger)
	feed := service.NewResultFeed(bus, nil, nil, "", logger)

	jwtMiddleware := func(c *fiber.Ctx) error {
		if raw := c.Get("X-Test-User"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fiber.ErrBadRequest
			}
			c.Locals("user_id", uint(id))
			c.Locals("user_role", c.Get("X-Test-Role"))
		}
		return c.Next()
	}
	if useJWT {
		jwtMiddleware = middleware.JWTProtected(testJWTSecret)
	}

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Exam Test", AppEnv: "test", JWTSecret: testJWTSecret}, router.Dependencies{
		ExamHandler:       handler.NewExamHandler(services.Exams, logger),
		ExerciseHandler:   handler.NewExerciseHandler(services.Exercises, services.TestCases, logger),
		SubmissionHandler: handler.NewSubmissionHandler(services.Solutions, middleware.RateLimit("submit", 100, time.Minute), logger),
		ResultHandler:     handler.NewResultHandler(services.Results, feed, time.Second, logger),
		JWTMiddleware:     jwtMiddleware,
	})

	return apiFixture{app: app, bus: bus, services: services, feed: feed}
}

func (fx apiFixture) do(t *testing.T, caller authz.Caller, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if caller.ID != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(caller.ID), 10))
		req.Header.Set("X-Test-Role", caller.Role)
	}

	resp, err := fx.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// seedStartedExam schedules an exam with one python exercise and one private
// test case, then starts it.
func (fx apiFixture) seedStartedExam(t *testing.T) (dto.ExamResponse, dto.ExerciseResponse, dto.TestCaseResponse) {
	t.Helper()

	status, env := fx.do(t, teacher, fiber.MethodPost, "/api/v1/exams", dto.ExamCreateRequest{
		Description:     "Loops and conditionals",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 90,
	})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	exam := decodeData[dto.ExamResponse](t, env)

	status, env = fx.do(t, teacher, fiber.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/exercises", dto.ExerciseCreateRequest{
		Question:     "Print the sum of two integers",
		Language:     "python",
		AwardedScore: 5,
	})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	exercise := decodeData[dto.ExerciseResponse](t, env)

	status, env = fx.do(t, teacher, fiber.MethodPost, "/api/v1/exercises/"+itoa(exercise.ID)+"/test-cases", dto.TestCaseCreateRequest{
		Visibility:          "private",
		TimeoutMillis:       1000,
		InputLines:          []string{"1 2"},
		ExpectedOutputLines: []string{"3"},
	})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	testCase := decodeData[dto.TestCaseResponse](t, env)

	status, env = fx.do(t, teacher, fiber.MethodPost, "/api/v1/exams/"+itoa(exam.ID)+"/start", nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	exam = decodeData[dto.ExamResponse](t, env)

	return exam, exercise, testCase
}

// submitAnswer opens a submission for caller, answers its solution and places it.
func (fx apiFixture) submitAnswer(t *testing.T, caller authz.Caller, examID uint, answer string) (dto.SubmissionResponse, dto.SolutionResponse) {
	t.Helper()

	status, env := fx.do(t, caller, fiber.MethodPost, "/api/v1/exams/"+itoa(examID)+"/submissions", nil)
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	submission := decodeData[dto.SubmissionResponse](t, env)

	status, env = fx.do(t, caller, fiber.MethodGet, "/api/v1/submissions/"+itoa(submission.ID)+"/solutions", nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	solutions := decodeData[[]dto.SolutionResponse](t, env)
	require.Len(t, solutions, 1)

	status, env = fx.do(t, caller, fiber.MethodPatch, "/api/v1/solutions/"+itoa(solutions[0].ID), dto.SolutionUpdateRequest{Answer: &answer})
	require.Equal(t, fiber.StatusOK, status, env.Message)
	solution := decodeData[dto.SolutionResponse](t, env)

	status, env = fx.do(t, caller, fiber.MethodPost, "/api/v1/submissions/"+itoa(submission.ID)+"/submit", nil)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	submission = decodeData[dto.SubmissionResponse](t, env)

	return submission, solution
}

// seedThroughServices mirrors seedStartedExam for fixtures that authenticate with real tokens.
func seedThroughServices(t *testing.T, services service.Services) (models.Exam, models.TestCase) {
	t.Helper()
	ctx := context.Background()

	exam, err := services.Exams.CreateExam(ctx, teacher, dto.ExamCreateRequest{
		Description:     "Streams",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	exercise, err := services.Exercises.CreateExercise(ctx, teacher, exam.ID, dto.ExerciseCreateRequest{
		Question:     "Print 3",
		Language:     "python",
		AwardedScore: 1,
	})
	require.NoError(t, err)
	testCase, err := services.TestCases.CreateTestCase(ctx, teacher, exercise.ID, dto.TestCaseCreateRequest{
		Visibility:          "private",
		TimeoutMillis:       1000,
		ExpectedOutputLines: []string{"3"},
	})
	require.NoError(t, err)
	exam, err = services.Exams.StartExam(ctx, teacher, exam.ID)
	require.NoError(t, err)
	return exam, testCase
}

func submitThroughServices(t *testing.T, services service.Services, examID uint, answer string) uint {
	t.Helper()
	ctx := context.Background()

	submission, err := services.Solutions.CreateExamSolutionSubmission(ctx, student, examID)
	require.NoError(t, err)
	solutions, err := services.Solutions.GetSolutionsForSubmission(ctx, student, submission.ID)
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	_, err = services.Solutions.ModifySolution(ctx, student, solutions[0].ID, dto.SolutionUpdateRequest{Answer: &answer})
	require.NoError(t, err)
	_, err = services.Solutions.SubmitSolutions(ctx, student, submission.ID)
	require.NoError(t, err)
	return solutions[0].ID
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
