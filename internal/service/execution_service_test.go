package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

type capturedSubmit struct {
	tag     execution.Tag
	request execution.Request
}

type capturingChannel struct {
	mu        sync.Mutex
	submitted []capturedSubmit
	err       error
}

func (c *capturingChannel) Submit(_ context.Context, tag execution.Tag, request execution.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.submitted = append(c.submitted, capturedSubmit{tag: tag, request: request})
	return nil
}

func (c *capturingChannel) Receive(ctx context.Context, _ execution.ResponseHandler) error {
	<-ctx.Done()
	return nil
}

// summingRunner adds the integers found on stdin.
type summingRunner struct{}

func (summingRunner) Run(_ context.Context, request execution.Request) execution.Response {
	total := 0
	for _, field := range strings.Fields(request.Stdin) {
		value, err := strconv.Atoi(field)
		if err != nil {
			code := 1
			return execution.Response{Status: execution.StatusCompleted, ExitCode: &code, Stderr: err.Error()}
		}
		total += value
	}
	code := 0
	return execution.Response{Status: execution.StatusCompleted, ExitCode: &code, Stdout: strconv.Itoa(total) + "\n"}
}

func TestRequestExecutionBuildsTaggedRequest(t *testing.T) {
	channel := &capturingChannel{}
	bus := events.NewLocalBus(zerolog.Nop())
	NewExecutionService(channel, bus, zerolog.Nop())

	testCase, err := models.NewTestCase(9, "private", 1500*time.Millisecond, []string{"--fast"}, []string{"1 2"}, []string{"3"})
	require.NoError(t, err)
	testCase.ID = 4

	err = bus.Publish(context.Background(), events.ExecutionRequested{
		Solution: models.ExerciseSolution{ID: 7, ExerciseID: 9, Answer: "print(3)", MainFileName: "main.py", CompilerFlags: "-O2"},
		TestCase: testCase,
		Language: models.LanguagePython,
		Attempt:  3,
	})
	require.NoError(t, err)

	require.Len(t, channel.submitted, 1)
	submitted := channel.submitted[0]
	require.Equal(t, execution.Tag{SolutionID: 7, TestCaseID: 4, Attempt: 3}, submitted.tag)
	require.Equal(t, execution.Request{
		Language:         "python",
		Source:           "print(3)",
		MainFileName:     "main.py",
		CompilerFlags:    "-O2",
		ProgramArguments: []string{"--fast"},
		Stdin:            "1 2\n",
		Timeout:          1500 * time.Millisecond,
	}, submitted.request)
}

func TestRequestExecutionPropagatesSubmitFailure(t *testing.T) {
	channel := &capturingChannel{err: errors.New("broker down")}
	bus := events.NewLocalBus(zerolog.Nop())
	NewExecutionService(channel, bus, zerolog.Nop())

	err := bus.Publish(context.Background(), events.ExecutionRequested{Language: models.LanguageGo, Attempt: 1})
	require.ErrorContains(t, err, "broker down")
}

func TestHandleResponseRepublishes(t *testing.T) {
	bus := events.NewLocalBus(zerolog.Nop())
	service := NewExecutionService(&capturingChannel{}, bus, zerolog.Nop())

	var arrived []events.ExecutionResultArrived
	events.Subscribe(bus, func(_ context.Context, event events.ExecutionResultArrived) error {
		arrived = append(arrived, event)
		return nil
	})

	tag := execution.Tag{SolutionID: 1, TestCaseID: 2, Attempt: 1}
	response := &execution.Response{Status: execution.StatusTimeout}
	require.NoError(t, service.HandleResponse(context.Background(), tag, response))
	require.Len(t, arrived, 1)
	require.Equal(t, tag, arrived[0].Tag)
	require.Same(t, response, arrived[0].Response)
}

func TestSubmissionGradedEndToEndThroughLocalChannel(t *testing.T) {
	fx := newExamFixture(t)
	sqlDB, err := fx.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	channel := execution.NewLocalChannel(summingRunner{}, 2, zerolog.Nop())
	defer channel.Close()
	executions := NewExecutionService(channel, fx.bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- executions.Start(ctx) }()

	exam, _, _ := fx.startedExam(t)
	_, solution := fx.submitAnswer(t, exam.ID, "a, b = map(int, input().split())\nprint(a + b)")

	require.Eventually(t, func() bool {
		results, err := fx.results.GetResultsForSolution(context.Background(), fx.teacher, solution.ID)
		if err != nil || len(results) != 2 {
			return false
		}
		for _, result := range results {
			if result.Result != models.ResultApproved {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
