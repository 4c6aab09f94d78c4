package events

import (
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

// Topic routes an event to its subscribers.
type Topic string

const (
	TopicSubmissionSubmitted    Topic = "submission.submitted"
	TopicExecutionRequested     Topic = "execution.requested"
	TopicExecutionResultArrived Topic = "execution.result_arrived"
	TopicResultRecorded         Topic = "result.recorded"
)

// Event is anything published on the bus.
type Event interface {
	Topic() Topic
}

// SubmissionSubmitted is raised once a student's submission moves to SUBMITTED.
type SubmissionSubmitted struct {
	SubmissionID uint
	ExamID       uint
	SubmitterID  uint
}

func (SubmissionSubmitted) Topic() Topic { return TopicSubmissionSubmitted }

// ExecutionRequested asks for one solution to be run against one test case.
type ExecutionRequested struct {
	Solution models.ExerciseSolution
	TestCase models.TestCase
	Language models.Language
	Attempt  uint
}

func (ExecutionRequested) Topic() Topic { return TopicExecutionRequested }

// ExecutionResultArrived carries a response received from the execution service.
type ExecutionResultArrived struct {
	Tag      execution.Tag
	Response *execution.Response
}

func (ExecutionResultArrived) Topic() Topic { return TopicExecutionResultArrived }

// ResultRecorded is raised after a result row has been marked and persisted.
type ResultRecorded struct {
	Result models.ExerciseSolutionResult
}

func (ResultRecorded) Topic() Topic { return TopicResultRecorded }
