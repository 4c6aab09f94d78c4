package handler_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
)

func TestHealthIsPublic(t *testing.T) {
	fx := newAPIFixture(t, true)

	resp, err := fx.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Exam Test", resp.Header.Get("X-Application"))
}

func TestExamRoutesRequireToken(t *testing.T) {
	fx := newAPIFixture(t, true)

	status, _ := fx.do(t, authz.Caller{}, fiber.MethodGet, "/api/v1/exams", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestExamRoutesWithSignedToken(t *testing.T) {
	fx := newAPIFixture(t, true)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1",
		"role": "teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/exams", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreateExamRequiresTeacherRole(t *testing.T) {
	fx := newAPIFixture(t, false)

	status, _ := fx.do(t, student, fiber.MethodPost, "/api/v1/exams", dto.ExamCreateRequest{
		Description:     "not allowed",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 30,
	})
	require.Equal(t, fiber.StatusForbidden, status)
}

func TestCreateExamValidation(t *testing.T) {
	fx := newAPIFixture(t, false)

	status, env := fx.do(t, teacher, fiber.MethodPost, "/api/v1/exams", dto.ExamCreateRequest{
		Description:     "in the past",
		StartingAt:      time.Now().Add(-time.Hour),
		DurationMinutes: 30,
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, env.Success)
	require.Equal(t, "invalid argument", env.Details["kind"])
}

func TestExamLifecycleOverHTTP(t *testing.T) {
	fx := newAPIFixture(t, false)

	status, env := fx.do(t, teacher, fiber.MethodPost, "/api/v1/exams", dto.ExamCreateRequest{
		Description:     "<b>Midterm</b><script>alert(1)</script>",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 60,
	})
	require.Equal(t, fiber.StatusCreated, status)
	exam := decodeData[dto.ExamResponse](t, env)
	require.Equal(t, "UPCOMING", exam.State)
	require.NotContains(t, exam.Description, "script")
	require.Equal(t, []uint{teacher.ID}, exam.Owners)

	path := "/api/v1/exams/" + itoa(exam.ID)

	status, _ = fx.do(t, student, fiber.MethodGet, path+"/exercises", nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, env = fx.do(t, teacher, fiber.MethodPost, path+"/start", nil)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "illegal state", env.Details["kind"])

	status, _ = fx.do(t, student, fiber.MethodPatch, path, dto.ExamUpdateRequest{})
	require.Equal(t, fiber.StatusForbidden, status)

	minutes := 45
	status, env = fx.do(t, teacher, fiber.MethodPatch, path, dto.ExamUpdateRequest{DurationMinutes: &minutes})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 45, decodeData[dto.ExamResponse](t, env).DurationMinutes)

	status, env = fx.do(t, teacher, fiber.MethodPost, path+"/owners", dto.ExamOwnerRequest{OwnerID: 7})
	require.Equal(t, fiber.StatusOK, status)
	require.ElementsMatch(t, []uint{teacher.ID, 7}, decodeData[dto.ExamResponse](t, env).Owners)

	status, env = fx.do(t, teacher, fiber.MethodDelete, path+"/owners/7", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, []uint{teacher.ID}, decodeData[dto.ExamResponse](t, env).Owners)

	status, _ = fx.do(t, teacher, fiber.MethodDelete, path, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = fx.do(t, teacher, fiber.MethodGet, path, nil)
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = fx.do(t, teacher, fiber.MethodDelete, path, nil)
	require.Equal(t, fiber.StatusOK, status)
}

func TestStartedExamRejectsCatalogChanges(t *testing.T) {
	fx := newAPIFixture(t, false)
	exam, exercise, testCase := fx.seedStartedExam(t)
	require.Equal(t, "IN_PROGRESS", exam.State)

	status, _ := fx.do(t, teacher, fiber.MethodDelete, "/api/v1/exercises/"+itoa(exercise.ID), nil)
	require.Equal(t, fiber.StatusConflict, status)

	status, env := fx.do(t, student, fiber.MethodGet, "/api/v1/exercises/"+itoa(exercise.ID)+"/test-cases", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Empty(t, decodeData[[]dto.TestCaseResponse](t, env))

	status, _ = fx.do(t, student, fiber.MethodGet, "/api/v1/test-cases/"+itoa(testCase.ID), nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, env = fx.do(t, teacher, fiber.MethodGet, "/api/v1/exercises/"+itoa(exercise.ID)+"/test-cases", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decodeData[[]dto.TestCaseResponse](t, env), 1)
}

func TestMalformedIdentifiers(t *testing.T) {
	fx := newAPIFixture(t, false)

	status, _ := fx.do(t, teacher, fiber.MethodGet, "/api/v1/exams/abc", nil)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = fx.do(t, teacher, fiber.MethodGet, "/api/v1/exams/0", nil)
	require.Equal(t, fiber.StatusBadRequest, status)
}
