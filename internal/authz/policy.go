package authz

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)

// Policy decides whether a caller may perform an operation on a resource.
// Implementations return an error wrapping apperror.ErrForbidden on denial.
type Policy interface {
	Authorize(ctx context.Context, caller Caller, op Operation, resource Resource) error
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, caller Caller, op Operation, resource Resource) error

// Authorize calls f.
func (f PolicyFunc) Authorize(ctx context.Context, caller Caller, op Operation, resource Resource) error {
	return f(ctx, caller, op, resource)
}

// RolePolicyRepositories groups the stores the role policy resolves ownership through.
type RolePolicyRepositories struct {
	Exams       repository.ExamRepository
	Exercises   repository.ExerciseRepository
	TestCases   repository.TestCaseRepository
	Submissions repository.SolutionSubmissionRepository
	Solutions   repository.ExerciseSolutionRepository
}

// NewRolePolicy returns the default policy. Admins may do anything, teachers may
// create exams, exam owners manage their exams and submitters work on their own
// submissions. A target that cannot be resolved is allowed through so the manager
// reports NotFound or treats the call as a no-op.
func NewRolePolicy(repos RolePolicyRepositories) Policy {
	return &rolePolicy{repos: repos}
}

type rolePolicy struct {
	repos RolePolicyRepositories
}

type target struct {
	found      bool
	exam       models.Exam
	testCase   *models.TestCase
	submission *models.ExamSolutionSubmission
}

func (p *rolePolicy) Authorize(ctx context.Context, caller Caller, op Operation, resource Resource) error {
	if !caller.IsAuthenticated() {
		return deny(op, "caller is not authenticated")
	}
	if caller.IsAdmin() {
		return nil
	}

	switch op {
	case OpListExams, OpViewExam, OpCreateSubmission:
		return nil
	case OpCreateExam:
		if caller.Role == RoleTeacher {
			return nil
		}
		return deny(op, "only teachers can create exams")
	}

	tgt, err := p.resolve(ctx, resource)
	if err != nil {
		return err
	}
	if !tgt.found {
		return nil
	}
	owner := tgt.exam.IsOwner(caller.ID)

	switch op {
	case OpModifyExam, OpStartExam, OpFinishExam, OpDeleteExam, OpManageExamOwners,
		OpCreateExercise, OpModifyExercise, OpDeleteExercise,
		OpCreateTestCase, OpModifyTestCase, OpDeleteTestCase, OpViewPrivateTestCases,
		OpListSubmissions, OpRetryResults:
		if owner {
			return nil
		}
		return deny(op, "caller does not own exam %d", tgt.exam.ID)
	case OpListExercises, OpViewExercise, OpListTestCases:
		if owner || !tgt.exam.IsUpcoming() {
			return nil
		}
		return deny(op, "exam %d has not started yet", tgt.exam.ID)
	case OpViewTestCase:
		if owner {
			return nil
		}
		if tgt.exam.IsUpcoming() {
			return deny(op, "exam %d has not started yet", tgt.exam.ID)
		}
		if tgt.testCase != nil && tgt.testCase.IsPrivate() {
			return deny(op, "test case %d is private", tgt.testCase.ID)
		}
		return nil
	case OpViewSubmission, OpViewSolution, OpViewResults:
		if owner || (tgt.submission != nil && tgt.submission.SubmitterID == caller.ID) {
			return nil
		}
		return deny(op, "caller neither owns the exam nor the submission")
	case OpSubmitSolutions, OpModifySolution:
		if tgt.submission != nil && tgt.submission.SubmitterID == caller.ID {
			return nil
		}
		return deny(op, "only the submitter may change a submission")
	default:
		return deny(op, "operation is not recognised")
	}
}

func (p *rolePolicy) resolve(ctx context.Context, resource Resource) (target, error) {
	var tgt target
	examID := uint(0)

	switch resource.Kind {
	case KindExam:
		examID = resource.ID
	case KindExercise:
		exercise, err := p.repos.Exercises.GetByID(ctx, resource.ID)
		if err != nil {
			return missing(err)
		}
		examID = exercise.ExamID
	case KindTestCase:
		testCase, err := p.repos.TestCases.GetByID(ctx, resource.ID)
		if err != nil {
			return missing(err)
		}
		exercise, err := p.repos.Exercises.GetByID(ctx, testCase.ExerciseID)
		if err != nil {
			return missing(err)
		}
		tgt.testCase = &testCase
		examID = exercise.ExamID
	case KindSubmission, KindSolution:
		submissionID := resource.ID
		if resource.Kind == KindSolution {
			solution, err := p.repos.Solutions.GetByID(ctx, resource.ID)
			if err != nil {
				return missing(err)
			}
			submissionID = solution.SubmissionID
		}
		submission, err := p.repos.Submissions.GetByID(ctx, submissionID)
		if err != nil {
			return missing(err)
		}
		tgt.submission = &submission
		examID = submission.ExamID
	default:
		return target{}, nil
	}

	exam, err := p.repos.Exams.GetByID(ctx, examID)
	if err != nil {
		return missing(err)
	}
	tgt.exam = exam
	tgt.found = true
	return tgt, nil
}

func missing(err error) (target, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target{}, nil
	}
	return target{}, err
}

func deny(op Operation, format string, args ...interface{}) error {
	return apperror.New(apperror.ErrForbidden, "%s: %s", op, fmt.Sprintf(format, args...))
}
