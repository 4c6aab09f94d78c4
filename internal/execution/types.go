package execution

import (
	"context"
	"fmt"
	"time"
)

// Status is the terminal status reported by the execution service.
type Status string

const (
	StatusCompleted           Status = "COMPLETED"
	StatusTimeout             Status = "TIMEOUT"
	StatusCompileError        Status = "COMPILE_ERROR"
	StatusInitializationError Status = "INITIALIZATION_ERROR"
	StatusUnknownError        Status = "UNKNOWN_ERROR"
)

// Tag correlates an execution with the (solution, test case) pair that requested it.
// Attempt echoes the result row generation so superseded responses can be detected.
type Tag struct {
	SolutionID uint `json:"solution_id"`
	TestCaseID uint `json:"test_case_id"`
	Attempt    uint `json:"attempt"`
}

func (t Tag) String() string {
	return fmt.Sprintf("solution=%d test_case=%d attempt=%d", t.SolutionID, t.TestCaseID, t.Attempt)
}

// Request is the command sent to the execution service.
type Request struct {
	Language         string        `json:"language"`
	Source           string        `json:"source"`
	MainFileName     string        `json:"main_file_name,omitempty"`
	CompilerFlags    string        `json:"compiler_flags,omitempty"`
	ProgramArguments []string      `json:"program_arguments,omitempty"`
	Stdin            string        `json:"stdin,omitempty"`
	Timeout          time.Duration `json:"timeout"`
}

// Response is what the execution service reports back for one request.
type Response struct {
	Status   Status `json:"status"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Detail   string `json:"detail,omitempty"`
	// DurationMillis is informational.
	DurationMillis int64 `json:"duration_ms,omitempty"`
}

// ResponseHandler consumes responses arriving from the execution service.
type ResponseHandler func(ctx context.Context, tag Tag, response *Response) error

// Channel carries requests to the execution service and responses back.
type Channel interface {
	// Submit sends a tagged request; it returns once the request has been handed off.
	Submit(ctx context.Context, tag Tag, request Request) error
	// Receive delivers inbound responses to handler until ctx is cancelled.
	Receive(ctx context.Context, handler ResponseHandler) error
}

// RequestEnvelope is the wire form of a submitted request.
type RequestEnvelope struct {
	CorrelationID string  `json:"correlation_id"`
	Tag           Tag     `json:"tag"`
	Request       Request `json:"request"`
}

// ResponseEnvelope is the wire form of a returned response.
type ResponseEnvelope struct {
	CorrelationID string   `json:"correlation_id"`
	WorkerID      string   `json:"worker_id,omitempty"`
	Tag           Tag      `json:"tag"`
	Response      Response `json:"response"`
}

func intPtr(value int) *int {
	return &value
}
