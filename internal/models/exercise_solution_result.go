package models

import "time"

// ResultOutcome is the terminal classification of one execution.
type ResultOutcome string

const (
	ResultApproved            ResultOutcome = "APPROVED"
	ResultFailed              ResultOutcome = "FAILED"
	ResultTimedOut            ResultOutcome = "TIMED_OUT"
	ResultNotCompiled         ResultOutcome = "NOT_COMPILED"
	ResultInitializationError ResultOutcome = "INITIALIZATION_ERROR"
	ResultUnknownError        ResultOutcome = "UNKNOWN_ERROR"
	ResultNotAnswered         ResultOutcome = "NOT_ANSWERED"
)

// ExerciseSolutionResult is the graded outcome of running one solution against one test case.
// An empty Result means the row is unmarked: an execution has been dispatched and is awaited.
type ExerciseSolutionResult struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	SolutionID uint          `gorm:"not null;uniqueIndex:idx_result_solution_test_case;index" json:"solution_id"`
	TestCaseID uint          `gorm:"not null;uniqueIndex:idx_result_solution_test_case" json:"test_case_id"`
	Result     ResultOutcome `gorm:"size:32" json:"result"`
	Attempt    uint          `gorm:"not null;default:0" json:"attempt"`
	ExitCode   *int          `json:"exit_code"`
	Stdout     string        `gorm:"type:text" json:"stdout"`
	Stderr     string        `gorm:"type:text" json:"stderr"`
	Detail     string        `gorm:"type:text" json:"detail"`
	MarkedAt   *time.Time    `json:"marked_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ExecutionOutput carries the raw output recorded alongside an outcome.
type ExecutionOutput struct {
	ExitCode *int
	Stdout   string
	Stderr   string
	Detail   string
}

// IsMarked reports whether an outcome has been recorded and no execution is in flight.
func (r ExerciseSolutionResult) IsMarked() bool {
	return r.Result != ""
}

// Mark records a terminal outcome.
func (r *ExerciseSolutionResult) Mark(outcome ResultOutcome, output ExecutionOutput, now time.Time) {
	r.Result = outcome
	r.ExitCode = output.ExitCode
	r.Stdout = output.Stdout
	r.Stderr = output.Stderr
	r.Detail = output.Detail
	markedAt := now.UTC()
	r.MarkedAt = &markedAt
}

// MarkNotAnswered classifies the row locally without any execution.
func (r *ExerciseSolutionResult) MarkNotAnswered(now time.Time) {
	r.Mark(ResultNotAnswered, ExecutionOutput{}, now)
}

// Unmark hands ownership of the next outcome to a newly dispatched execution.
func (r *ExerciseSolutionResult) Unmark() {
	r.Result = ""
	r.ExitCode = nil
	r.Stdout = ""
	r.Stderr = ""
	r.Detail = ""
	r.MarkedAt = nil
	r.Attempt++
}
