package dto

import (
	"time"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// TestCaseCreateRequest represents the payload for adding a test case to an exercise.
type TestCaseCreateRequest struct {
	Visibility          string   `json:"visibility" validate:"required"`
	TimeoutMillis       int64    `json:"timeout_ms" validate:"required,gt=0"`
	ProgramArguments    []string `json:"program_arguments"`
	InputLines          []string `json:"input_lines"`
	ExpectedOutputLines []string `json:"expected_output_lines"`
}

// Timeout converts the requested timeout.
func (r TestCaseCreateRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutMillis) * time.Millisecond
}

// TestCaseUpdateRequest carries a partial test case update. Nil slices leave the
// stored lines untouched; an empty slice clears them.
type TestCaseUpdateRequest struct {
	Visibility          *string   `json:"visibility"`
	TimeoutMillis       *int64    `json:"timeout_ms" validate:"omitempty,gt=0"`
	ProgramArguments    *[]string `json:"program_arguments"`
	InputLines          *[]string `json:"input_lines"`
	ExpectedOutputLines *[]string `json:"expected_output_lines"`
}

// TestCaseResponse represents a test case to API consumers.
type TestCaseResponse struct {
	ID                  uint      `json:"id"`
	ExerciseID          uint      `json:"exercise_id"`
	Visibility          string    `json:"visibility"`
	TimeoutMillis       int64     `json:"timeout_ms"`
	ProgramArguments    []string  `json:"program_arguments"`
	InputLines          []string  `json:"input_lines"`
	ExpectedOutputLines []string  `json:"expected_output_lines"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewTestCaseResponse builds a response DTO from a model.
func NewTestCaseResponse(testCase models.TestCase) TestCaseResponse {
	return TestCaseResponse{
		ID:                  testCase.ID,
		ExerciseID:          testCase.ExerciseID,
		Visibility:          string(testCase.Visibility),
		TimeoutMillis:       testCase.Timeout.Milliseconds(),
		ProgramArguments:    nonNilLines(testCase.ProgramArguments),
		InputLines:          nonNilLines(testCase.InputLines),
		ExpectedOutputLines: nonNilLines(testCase.ExpectedOutputLines),
		CreatedAt:           testCase.CreatedAt,
		UpdatedAt:           testCase.UpdatedAt,
	}
}

// NewTestCaseResponses converts a list of test cases.
func NewTestCaseResponses(testCases []models.TestCase) []TestCaseResponse {
	responses := make([]TestCaseResponse, 0, len(testCases))
	for _, testCase := range testCases {
		responses = append(responses, NewTestCaseResponse(testCase))
	}
	return responses
}

func nonNilLines(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return append([]string(nil), lines...)
}
