package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-api/internal/apperror"
)

// TestCaseVisibility controls whether students may see a test case.
type TestCaseVisibility string

const (
	TestCaseVisibilityPublic  TestCaseVisibility = "PUBLIC"
	TestCaseVisibilityPrivate TestCaseVisibility = "PRIVATE"
)

// ParseTestCaseVisibility normalises a visibility value.
func ParseTestCaseVisibility(value string) (TestCaseVisibility, error) {
	visibility := TestCaseVisibility(strings.ToUpper(strings.TrimSpace(value)))
	switch visibility {
	case TestCaseVisibilityPublic, TestCaseVisibilityPrivate:
		return visibility, nil
	default:
		return "", apperror.InvalidArgument("unsupported test case visibility %q", value)
	}
}

// TestCase is an input/expected-output pair used to grade an exercise.
type TestCase struct {
	ID                  uint                        `gorm:"primaryKey" json:"id"`
	ExerciseID          uint                        `gorm:"not null;index" json:"exercise_id"`
	Visibility          TestCaseVisibility          `gorm:"size:16;not null" json:"visibility"`
	Timeout             time.Duration               `gorm:"not null" json:"timeout"`
	ProgramArguments    datatypes.JSONSlice[string] `json:"program_arguments"`
	InputLines          datatypes.JSONSlice[string] `json:"input_lines"`
	ExpectedOutputLines datatypes.JSONSlice[string] `json:"expected_output_lines"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// NewTestCase builds a test case bound to exerciseID.
func NewTestCase(exerciseID uint, visibility string, timeout time.Duration, arguments, inputs, expected []string) (TestCase, error) {
	testCase := TestCase{ExerciseID: exerciseID}
	if err := testCase.SetVisibility(visibility); err != nil {
		return TestCase{}, err
	}
	if err := testCase.SetTimeout(timeout); err != nil {
		return TestCase{}, err
	}
	testCase.SetProgramArguments(arguments)
	testCase.SetInputLines(inputs)
	testCase.SetExpectedOutputLines(expected)
	return testCase, nil
}

// SetVisibility replaces the visibility.
func (t *TestCase) SetVisibility(visibility string) error {
	parsed, err := ParseTestCaseVisibility(visibility)
	if err != nil {
		return err
	}
	t.Visibility = parsed
	return nil
}

// SetTimeout replaces the execution timeout, which must be positive.
func (t *TestCase) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return apperror.InvalidArgument("test case timeout must be positive")
	}
	t.Timeout = timeout
	return nil
}

// SetProgramArguments replaces the command line arguments.
func (t *TestCase) SetProgramArguments(arguments []string) {
	t.ProgramArguments = copyLines(arguments)
}

// SetInputLines replaces the stdin lines.
func (t *TestCase) SetInputLines(lines []string) {
	t.InputLines = copyLines(lines)
}

// SetExpectedOutputLines replaces the expected stdout lines.
func (t *TestCase) SetExpectedOutputLines(lines []string) {
	t.ExpectedOutputLines = copyLines(lines)
}

// IsPrivate reports whether the test case is hidden from students.
func (t TestCase) IsPrivate() bool {
	return t.Visibility == TestCaseVisibilityPrivate
}

// Stdin renders the input lines as the program's standard input.
func (t TestCase) Stdin() string {
	if len(t.InputLines) == 0 {
		return ""
	}
	return strings.Join(t.InputLines, "\n") + "\n"
}

func copyLines(lines []string) datatypes.JSONSlice[string] {
	cloned := make([]string, len(lines))
	copy(cloned, lines)
	return datatypes.JSONSlice[string](cloned)
}
