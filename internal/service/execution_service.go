package service

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/execution"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

// ExecutionService forwards execution requests to the execution channel and
// republishes the responses that come back.
type ExecutionService interface {
	RequestExecution(ctx context.Context, event events.ExecutionRequested) error
	HandleResponse(ctx context.Context, tag execution.Tag, response *execution.Response) error
	Start(ctx context.Context) error
}

type executionService struct {
	channel execution.Channel
	bus     events.Bus
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewExecutionService constructs the execution service and subscribes it to
// execution requests on bus.
func NewExecutionService(channel execution.Channel, bus events.Bus, logger zerolog.Logger) ExecutionService {
	service := &executionService{
		channel: channel,
		bus:     bus,
		logger:  logger.With().Str("component", "execution_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/gema-exam-api/internal/service/execution"),
	}
	events.Subscribe(bus, service.RequestExecution)
	return service
}

func (s *executionService) RequestExecution(ctx context.Context, event events.ExecutionRequested) error {
	tag := execution.Tag{
		SolutionID: event.Solution.ID,
		TestCaseID: event.TestCase.ID,
		Attempt:    event.Attempt,
	}

	ctx, span := s.tracer.Start(ctx, "execution.submit", trace.WithAttributes(
		attribute.String("execution.language", string(event.Language)),
		attribute.String("execution.tag", tag.String()),
	))
	defer span.End()

	request := execution.Request{
		Language:         string(event.Language),
		Source:           event.Solution.Answer,
		MainFileName:     event.Solution.MainFileName,
		CompilerFlags:    event.Solution.CompilerFlags,
		ProgramArguments: append([]string(nil), event.TestCase.ProgramArguments...),
		Stdin:            event.TestCase.Stdin(),
		Timeout:          event.TestCase.Timeout,
	}
	if err := s.channel.Submit(ctx, tag, request); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return err
	}

	observability.ExecutionsDispatched().WithLabelValues(string(event.Language)).Inc()
	s.logger.Debug().Str("tag", tag.String()).Str("language", string(event.Language)).Msg("execution requested")
	return nil
}

// HandleResponse republishes a response for the result service. Failures are logged
// and returned to the channel.
func (s *executionService) HandleResponse(ctx context.Context, tag execution.Tag, response *execution.Response) error {
	err := s.bus.Publish(ctx, events.ExecutionResultArrived{Tag: tag, Response: response})
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag.String()).Msg("failed to record execution response")
	}
	return err
}

// Start consumes responses from the channel until ctx is cancelled.
func (s *executionService) Start(ctx context.Context) error {
	s.logger.Info().Msg("execution response consumer started")
	return s.channel.Receive(ctx, s.HandleResponse)
}
