package execution

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var workerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gema_exam",
	Subsystem: "execworker",
	Name:      "requests_total",
	Help:      "Execution requests served by this worker grouped by transport and status",
}, []string{"transport", "status"})

// serveRequest decodes a request envelope, runs it and renders the tagged response.
// The returned payload is nil when the request could not be decoded.
func serveRequest(ctx context.Context, runner Runner, workerID, transport string, data []byte, logger zerolog.Logger) []byte {
	envelope, err := DecodeRequest(data)
	if err != nil {
		workerRequests.WithLabelValues(transport, "malformed").Inc()
		logger.Warn().Err(err).Msg("dropping malformed execution request")
		return nil
	}

	response := runner.Run(ctx, envelope.Request)
	workerRequests.WithLabelValues(transport, string(response.Status)).Inc()

	logger.Info().
		Str("correlation_id", envelope.CorrelationID).
		Uint("solution_id", envelope.Tag.SolutionID).
		Uint("test_case_id", envelope.Tag.TestCaseID).
		Uint("attempt", envelope.Tag.Attempt).
		Str("status", string(response.Status)).
		Msg("execution finished")

	payload, err := EncodeResponse(ResponseEnvelope{
		CorrelationID: envelope.CorrelationID,
		WorkerID:      workerID,
		Tag:           envelope.Tag,
		Response:      response,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode execution response")
		return nil
	}
	return payload
}
