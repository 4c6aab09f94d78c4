package authz

import "strings"

// Roles carried in the JWT role claim.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Caller identifies who is invoking a manager operation.
type Caller struct {
	ID   uint
	Role string
}

// NewCaller normalises the role the same way the JWT middleware does.
func NewCaller(id uint, role string) Caller {
	return Caller{ID: id, Role: strings.ToLower(strings.TrimSpace(role))}
}

// IsAuthenticated reports whether the caller carries a user id.
func (c Caller) IsAuthenticated() bool {
	return c.ID != 0
}

// IsAdmin reports whether the caller may bypass ownership checks.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Operation names a guarded manager action.
type Operation string

const (
	OpListExams        Operation = "exam:list"
	OpViewExam         Operation = "exam:view"
	OpCreateExam       Operation = "exam:create"
	OpModifyExam       Operation = "exam:modify"
	OpStartExam        Operation = "exam:start"
	OpFinishExam       Operation = "exam:finish"
	OpDeleteExam       Operation = "exam:delete"
	OpManageExamOwners Operation = "exam:owners"

	OpListExercises  Operation = "exercise:list"
	OpViewExercise   Operation = "exercise:view"
	OpCreateExercise Operation = "exercise:create"
	OpModifyExercise Operation = "exercise:modify"
	OpDeleteExercise Operation = "exercise:delete"

	OpListTestCases        Operation = "test_case:list"
	OpViewTestCase         Operation = "test_case:view"
	OpViewPrivateTestCases Operation = "test_case:view_private"
	OpCreateTestCase       Operation = "test_case:create"
	OpModifyTestCase       Operation = "test_case:modify"
	OpDeleteTestCase       Operation = "test_case:delete"

	OpCreateSubmission Operation = "submission:create"
	OpListSubmissions  Operation = "submission:list"
	OpViewSubmission   Operation = "submission:view"
	OpSubmitSolutions  Operation = "submission:submit"

	OpViewSolution   Operation = "solution:view"
	OpModifySolution Operation = "solution:modify"

	OpViewResults  Operation = "result:view"
	OpRetryResults Operation = "result:retry"
)

// ResourceKind classifies the entity an operation targets.
type ResourceKind string

const (
	KindNone       ResourceKind = ""
	KindExam       ResourceKind = "exam"
	KindExercise   ResourceKind = "exercise"
	KindTestCase   ResourceKind = "test_case"
	KindSubmission ResourceKind = "submission"
	KindSolution   ResourceKind = "solution"
)

// Resource is the target of an operation.
type Resource struct {
	Kind ResourceKind
	ID   uint
}

// NoResource is used for operations that target no particular entity.
func NoResource() Resource { return Resource{} }

// Exam targets an exam.
func Exam(id uint) Resource { return Resource{Kind: KindExam, ID: id} }

// Exercise targets an exercise.
func Exercise(id uint) Resource { return Resource{Kind: KindExercise, ID: id} }

// TestCase targets a test case.
func TestCase(id uint) Resource { return Resource{Kind: KindTestCase, ID: id} }

// Submission targets an exam solution submission.
func Submission(id uint) Resource { return Resource{Kind: KindSubmission, ID: id} }

// Solution targets an exercise solution.
func Solution(id uint) Resource { return Resource{Kind: KindSolution, ID: id} }
