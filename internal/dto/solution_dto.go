package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// SolutionUpdateRequest carries a student's edit to one exercise solution.
type SolutionUpdateRequest struct {
	Answer        *string `json:"answer"`
	CompilerFlags *string `json:"compiler_flags" validate:"omitempty,max=255"`
	MainFileName  *string `json:"main_file_name" validate:"omitempty,max=255"`
}

// SubmissionResponse represents an exam solution submission to API consumers.
type SubmissionResponse struct {
	ID          uint       `json:"id"`
	ExamID      uint       `json:"exam_id"`
	SubmitterID uint       `json:"submitter_id"`
	State       string     `json:"state"`
	Score       *float64   `json:"score"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewSubmissionResponse builds a response DTO from a model.
func NewSubmissionResponse(submission models.ExamSolutionSubmission) SubmissionResponse {
	return SubmissionResponse{
		ID:          submission.ID,
		ExamID:      submission.ExamID,
		SubmitterID: submission.SubmitterID,
		State:       string(submission.State),
		Score:       submission.Score,
		SubmittedAt: submission.SubmittedAt,
		CreatedAt:   submission.CreatedAt,
	}
}

// NewSubmissionResponses converts a list of submissions.
func NewSubmissionResponses(submissions []models.ExamSolutionSubmission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}

// SolutionResponse represents an exercise solution to API consumers.
type SolutionResponse struct {
	ID            uint      `json:"id"`
	ExerciseID    uint      `json:"exercise_id"`
	SubmissionID  uint      `json:"submission_id"`
	Answer        string    `json:"answer"`
	CompilerFlags string    `json:"compiler_flags"`
	MainFileName  string    `json:"main_file_name"`
	Answered      bool      `json:"answered"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSolutionResponse builds a response DTO from a model.
func NewSolutionResponse(solution models.ExerciseSolution) SolutionResponse {
	return SolutionResponse{
		ID:            solution.ID,
		ExerciseID:    solution.ExerciseID,
		SubmissionID:  solution.SubmissionID,
		Answer:        solution.Answer,
		CompilerFlags: solution.CompilerFlags,
		MainFileName:  solution.MainFileName,
		Answered:      solution.IsAnswered(),
		UpdatedAt:     solution.UpdatedAt,
	}
}

// NewSolutionResponses converts a list of solutions.
func NewSolutionResponses(solutions []models.ExerciseSolution) []SolutionResponse {
	responses := make([]SolutionResponse, 0, len(solutions))
	for _, solution := range solutions {
		responses = append(responses, NewSolutionResponse(solution))
	}
	return responses
}

// ResultResponse represents one graded (solution, test case) pair.
type ResultResponse struct {
	ID         uint       `json:"id"`
	SolutionID uint       `json:"solution_id"`
	TestCaseID uint       `json:"test_case_id"`
	Result     string     `json:"result,omitempty"`
	Marked     bool       `json:"marked"`
	Attempt    uint       `json:"attempt"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Stdout     string     `json:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	MarkedAt   *time.Time `json:"marked_at,omitempty"`
}

// NewResultResponse builds a response DTO from a model.
func NewResultResponse(result models.ExerciseSolutionResult) ResultResponse {
	return ResultResponse{
		ID:         result.ID,
		SolutionID: result.SolutionID,
		TestCaseID: result.TestCaseID,
		Result:     string(result.Result),
		Marked:     result.IsMarked(),
		Attempt:    result.Attempt,
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		Detail:     result.Detail,
		MarkedAt:   result.MarkedAt,
	}
}

// NewResultResponses converts a list of results.
func NewResultResponses(results []models.ExerciseSolutionResult) []ResultResponse {
	responses := make([]ResultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, NewResultResponse(result))
	}
	return responses
}
