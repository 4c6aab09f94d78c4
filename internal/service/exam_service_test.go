package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/authz"
	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

func TestCreateExamSanitizesAndOwns(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()

	exam, err := fx.exams.CreateExam(ctx, fx.teacher, dto.ExamCreateRequest{
		Description:     "<script>alert(1)</script>Final <b>exam</b>",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.Equal(t, "Final exam", exam.Description)
	require.True(t, exam.IsOwner(fx.teacher.ID))
	require.Equal(t, models.ExamStateUpcoming, exam.State)

	_, err = fx.exams.CreateExam(ctx, fx.student, dto.ExamCreateRequest{
		Description:     "Not allowed",
		StartingAt:      time.Now().Add(time.Hour),
		DurationMinutes: 60,
	})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = fx.exams.CreateExam(ctx, fx.teacher, dto.ExamCreateRequest{
		Description:     "Past",
		StartingAt:      time.Now().Add(-time.Hour),
		DurationMinutes: 60,
	})
	require.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = fx.exams.CreateExam(ctx, fx.teacher, dto.ExamCreateRequest{Description: "No duration", StartingAt: time.Now().Add(time.Hour)})
	require.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestStartExamChecksExercisesBeforeTestCases(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)

	_, err := fx.exams.StartExam(ctx, fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)
	require.Contains(t, err.Error(), "does not contain any exercise")

	exercise := fx.createExercise(t, exam.ID)
	fx.createTestCase(t, exercise.ID, "public", nil, []string{"ok"})

	_, err = fx.exams.StartExam(ctx, fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)
	require.Contains(t, err.Error(), "missing private test case")

	stored, found, err := fx.exams.GetExam(ctx, fx.teacher, exam.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, models.ExamStateUpcoming, stored.State)
}

func TestExamStateMachineThroughService(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam, exercise, _ := fx.startedExam(t)
	require.Equal(t, models.ExamStateInProgress, exam.State)

	_, err := fx.exams.StartExam(ctx, fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)

	description := "Renamed"
	_, err = fx.exams.ModifyExam(ctx, fx.teacher, exam.ID, dto.ExamUpdateRequest{Description: &description})
	require.ErrorIs(t, err, apperror.ErrIllegalState)

	_, err = fx.exercises.CreateExercise(ctx, fx.teacher, exam.ID, dto.ExerciseCreateRequest{Question: "Late", Language: "go", AwardedScore: 1})
	require.ErrorIs(t, err, apperror.ErrIllegalState)
	require.ErrorIs(t, fx.exercises.DeleteExercise(ctx, fx.teacher, exercise.ID), apperror.ErrIllegalState)
	require.ErrorIs(t, fx.exams.DeleteExam(ctx, fx.teacher, exam.ID), apperror.ErrIllegalState)

	finished, err := fx.exams.FinishExam(ctx, fx.teacher, exam.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExamStateFinished, finished.State)

	_, err = fx.exams.FinishExam(ctx, fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)
	_, err = fx.exams.StartExam(ctx, fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)
}

func TestFinishRequiresStartedExam(t *testing.T) {
	fx := newExamFixture(t)
	exam := fx.createExam(t)

	_, err := fx.exams.FinishExam(context.Background(), fx.teacher, exam.ID)
	require.ErrorIs(t, err, apperror.ErrIllegalState)
}

func TestModifyExamAppliesPartialUpdate(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)

	minutes := 45
	updated, err := fx.exams.ModifyExam(ctx, fx.teacher, exam.ID, dto.ExamUpdateRequest{DurationMinutes: &minutes})
	require.NoError(t, err)
	require.Equal(t, 45*time.Minute, updated.Duration)
	require.Equal(t, exam.Description, updated.Description)

	other := authz.NewCaller(2, authz.RoleTeacher)
	_, err = fx.exams.ModifyExam(ctx, other, exam.ID, dto.ExamUpdateRequest{DurationMinutes: &minutes})
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestExamOwnersManagement(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)

	updated, err := fx.exams.AddOwnerToExam(ctx, fx.teacher, exam.ID, 7)
	require.NoError(t, err)
	require.True(t, updated.IsOwner(7))

	coOwner := authz.NewCaller(7, authz.RoleTeacher)
	updated, err = fx.exams.RemoveOwnerFromExam(ctx, coOwner, exam.ID, fx.teacher.ID)
	require.NoError(t, err)
	require.False(t, updated.IsOwner(fx.teacher.ID))

	_, err = fx.exams.RemoveOwnerFromExam(ctx, coOwner, exam.ID, 7)
	require.ErrorIs(t, err, apperror.ErrIllegalState)

	_, err = fx.exams.AddOwnerToExam(ctx, fx.teacher, exam.ID, 8)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestDeleteExamCascadesAndIsIdempotent(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)
	exercise := fx.createExercise(t, exam.ID)
	testCase := fx.createTestCase(t, exercise.ID, "private", nil, nil)

	require.NoError(t, fx.exams.DeleteExam(ctx, fx.teacher, exam.ID))
	require.NoError(t, fx.exams.DeleteExam(ctx, fx.teacher, exam.ID))

	_, found, err := fx.exams.GetExam(ctx, fx.teacher, exam.ID)
	require.NoError(t, err)
	require.False(t, found)

	var count int64
	require.NoError(t, fx.db.Model(&models.TestCase{}).Where("id = ?", testCase.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestExercisesHiddenUntilExamStarts(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)
	exercise := fx.createExercise(t, exam.ID)
	fx.createTestCase(t, exercise.ID, "private", nil, []string{"secret"})
	public := fx.createTestCase(t, exercise.ID, "public", nil, []string{"visible"})

	_, err := fx.exercises.ListExercises(ctx, fx.student, exam.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	owned, err := fx.testCases.ListTestCases(ctx, fx.teacher, exercise.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	_, err = fx.exams.StartExam(ctx, fx.teacher, exam.ID)
	require.NoError(t, err)

	exercises, err := fx.exercises.ListExercises(ctx, fx.student, exam.ID)
	require.NoError(t, err)
	require.Len(t, exercises, 1)

	visible, err := fx.testCases.ListTestCases(ctx, fx.student, exercise.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, public.ID, visible[0].ID)
}

func TestListOperationsReportMissingParents(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()

	_, err := fx.exercises.ListExercises(ctx, fx.admin, 404)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = fx.testCases.ListTestCases(ctx, fx.admin, 404)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = fx.exercises.CreateExercise(ctx, fx.admin, 404, dto.ExerciseCreateRequest{Question: "q", Language: "go", AwardedScore: 1})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	_, found, err := fx.exercises.GetExercise(ctx, fx.admin, 404)
	require.NoError(t, err)
	require.False(t, found)
}

func TestModifyTestCaseKeepsUntouchedFields(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)
	exercise := fx.createExercise(t, exam.ID)
	testCase := fx.createTestCase(t, exercise.ID, "public", []string{"1"}, []string{"1"})

	timeout := int64(500)
	cleared := []string{}
	updated, err := fx.testCases.ModifyTestCase(ctx, fx.teacher, testCase.ID, dto.TestCaseUpdateRequest{
		TimeoutMillis: &timeout,
		InputLines:    &cleared,
	})
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, updated.Timeout)
	require.Empty(t, updated.InputLines)
	require.Equal(t, []string{"1"}, []string(updated.ExpectedOutputLines))
	require.Equal(t, models.TestCaseVisibilityPublic, updated.Visibility)

	bad := "hidden"
	_, err = fx.testCases.ModifyTestCase(ctx, fx.teacher, testCase.ID, dto.TestCaseUpdateRequest{Visibility: &bad})
	require.ErrorIs(t, err, apperror.ErrInvalidArgument)

	require.NoError(t, fx.testCases.DeleteTestCase(ctx, fx.teacher, testCase.ID))
	require.NoError(t, fx.testCases.DeleteTestCase(ctx, fx.teacher, testCase.ID))
}

func TestCatalogTextKeepsOperators(t *testing.T) {
	fx := newExamFixture(t)
	ctx := context.Background()
	exam := fx.createExam(t)

	question := "Print max(a, b) when a < b && b > 0"
	exercise, err := fx.exercises.CreateExercise(ctx, fx.teacher, exam.ID, dto.ExerciseCreateRequest{
		Question:     question,
		Language:     "python",
		AwardedScore: 5,
	})
	require.NoError(t, err)
	require.Equal(t, question, exercise.Question)

	stored, found, err := fx.exercises.GetExercise(ctx, fx.teacher, exercise.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, question, stored.Question)

	description := "Scores & ranks: x >= 1 <i>only</i>"
	updated, err := fx.exams.ModifyExam(ctx, fx.teacher, exam.ID, dto.ExamUpdateRequest{Description: &description})
	require.NoError(t, err)
	require.Equal(t, "Scores & ranks: x >= 1 only", updated.Description)
}
