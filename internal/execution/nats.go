package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Subjects names the NATS subjects requests and responses travel on.
type Subjects struct {
	Requests  string
	Responses string
}

// SubjectsFor derives the request and response subjects from a prefix.
func SubjectsFor(prefix string) Subjects {
	if prefix == "" {
		prefix = "gema.exam.execution"
	}
	return Subjects{Requests: prefix + ".requests", Responses: prefix + ".responses"}
}

// NATSChannel publishes requests to a subject served by execution workers and
// consumes their responses through a queue group, so each response is handled by
// exactly one API replica.
type NATSChannel struct {
	conn     *nats.Conn
	subjects Subjects
	queue    string
	logger   zerolog.Logger
}

// NewNATSChannel constructs a NATS backed channel.
func NewNATSChannel(conn *nats.Conn, subjects Subjects, queue string, logger zerolog.Logger) *NATSChannel {
	if queue == "" {
		queue = "gema-exam-api"
	}
	return &NATSChannel{
		conn:     conn,
		subjects: subjects,
		queue:    queue,
		logger:   logger.With().Str("component", "nats_execution_channel").Logger(),
	}
}

func (c *NATSChannel) Submit(_ context.Context, tag Tag, request Request) error {
	payload, err := EncodeRequest(RequestEnvelope{
		CorrelationID: uuid.NewString(),
		Tag:           tag,
		Request:       request,
	})
	if err != nil {
		return err
	}
	if err := c.conn.Publish(c.subjects.Requests, payload); err != nil {
		return fmt.Errorf("publish execution request: %w", err)
	}
	return nil
}

func (c *NATSChannel) Receive(ctx context.Context, handler ResponseHandler) error {
	work := context.WithoutCancel(ctx)
	sub, err := c.conn.QueueSubscribe(c.subjects.Responses, c.queue, func(msg *nats.Msg) {
		handleResponsePayload(work, msg.Data, handler, c.logger)
	})
	if err != nil {
		return fmt.Errorf("subscribe to execution responses: %w", err)
	}

	<-ctx.Done()
	drainSubscription(c.conn, sub, c.logger)
	return nil
}

// NATSWorker serves execution requests published on NATS.
type NATSWorker struct {
	conn     *nats.Conn
	subjects Subjects
	queue    string
	runner   Runner
	sem      *semaphore.Weighted
	workerID string
	logger   zerolog.Logger
}

// NewNATSWorker constructs a worker joining queue so requests are load balanced across workers.
func NewNATSWorker(conn *nats.Conn, subjects Subjects, queue string, runner Runner, concurrency int64, workerID string, logger zerolog.Logger) *NATSWorker {
	if queue == "" {
		queue = "gema-exam-execworkers"
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &NATSWorker{
		conn:     conn,
		subjects: subjects,
		queue:    queue,
		runner:   runner,
		sem:      semaphore.NewWeighted(concurrency),
		workerID: workerID,
		logger:   logger.With().Str("component", "nats_execworker").Str("worker_id", workerID).Logger(),
	}
}

// Run serves requests until ctx is cancelled. It then drains the subscription,
// serving every request already delivered, and waits for in-flight executions.
func (w *NATSWorker) Run(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	pool := newRequestPool(w.sem)

	sub, err := w.conn.QueueSubscribe(w.subjects.Requests, w.queue, func(msg *nats.Msg) {
		accepted := pool.Go(func() {
			payload := serveRequest(work, w.runner, w.workerID, "nats", msg.Data, w.logger)
			if payload == nil {
				return
			}
			if err := w.conn.Publish(w.subjects.Responses, payload); err != nil {
				w.logger.Error().Err(err).Msg("failed to publish execution response")
			}
		})
		if !accepted {
			w.logger.Warn().Str("subject", msg.Subject).Msg("execution request arrived after shutdown")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to execution requests: %w", err)
	}
	w.logger.Info().Str("subject", w.subjects.Requests).Msg("execution worker listening")

	<-ctx.Done()
	drainSubscription(w.conn, sub, w.logger)
	pool.Close()
	return nil
}

// drainSubscription stops new deliveries and blocks until the callbacks for the
// messages already delivered have returned, or the connection drain timeout passes.
func drainSubscription(conn *nats.Conn, sub *nats.Subscription, logger zerolog.Logger) {
	closed := sub.StatusChanged(nats.SubscriptionClosed)
	if err := sub.Drain(); err != nil {
		if !errors.Is(err, nats.ErrConnectionClosed) {
			logger.Warn().Err(err).Str("subject", sub.Subject).Msg("failed to drain subscription")
		}
		return
	}

	timeout := conn.Opts.DrainTimeout
	if timeout <= 0 {
		timeout = nats.DefaultDrainTimeout
	}
	select {
	case <-closed:
	case <-time.After(timeout):
		logger.Warn().Str("subject", sub.Subject).Dur("timeout", timeout).Msg("subscription drain timed out")
		_ = sub.Unsubscribe()
	}
}

// requestPool runs requests on at most sem-many goroutines and refuses new work
// once closed.
type requestPool struct {
	sem    *semaphore.Weighted
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newRequestPool(sem *semaphore.Weighted) *requestPool {
	return &requestPool{sem: sem}
}

// Go blocks until a slot frees up, then runs fn in the background. It reports false
// when the pool was closed before fn could be admitted.
func (p *requestPool) Go(fn func()) bool {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn()
	}()
	return true
}

// Close refuses further work and waits for admitted work to finish.
func (p *requestPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

func handleResponsePayload(ctx context.Context, data []byte, handler ResponseHandler, logger zerolog.Logger) {
	envelope, err := DecodeResponse(data)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping invalid execution response")
		return
	}
	response := envelope.Response
	if err := handler(ctx, envelope.Tag, &response); err != nil {
		logger.Error().Err(err).
			Str("tag", envelope.Tag.String()).
			Str("correlation_id", envelope.CorrelationID).
			Msg("execution response handler failed")
	}
}
