package execution

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrChannelClosed is returned by Submit after Close.
var ErrChannelClosed = errors.New("execution channel closed")

type delivery struct {
	tag      Tag
	response Response
}

// LocalChannel runs requests in-process on a Runner, bounding concurrency with a
// weighted semaphore, and hands the responses to whoever is receiving.
type LocalChannel struct {
	runner    Runner
	sem       *semaphore.Weighted
	responses chan delivery
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    zerolog.Logger
}

// NewLocalChannel constructs an in-process channel running at most concurrency executions at once.
func NewLocalChannel(runner Runner, concurrency int64, logger zerolog.Logger) *LocalChannel {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalChannel{
		runner:    runner,
		sem:       semaphore.NewWeighted(concurrency),
		responses: make(chan delivery, concurrency),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With().Str("component", "local_execution_channel").Logger(),
	}
}

// Submit schedules the request and returns immediately.
func (c *LocalChannel) Submit(_ context.Context, tag Tag, request Request) error {
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			return
		}
		response := c.runner.Run(c.ctx, request)
		c.sem.Release(1)

		select {
		case c.responses <- delivery{tag: tag, response: response}:
		case <-c.ctx.Done():
			c.logger.Warn().Str("tag", tag.String()).Msg("dropping execution response, channel closed")
		}
	}()
	return nil
}

// Receive hands each finished execution to handler until ctx is cancelled.
func (c *LocalChannel) Receive(ctx context.Context, handler ResponseHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		case d := <-c.responses:
			response := d.response
			if err := handler(ctx, d.tag, &response); err != nil {
				c.logger.Error().Err(err).Str("tag", d.tag.String()).Msg("execution response handler failed")
			}
		}
	}
}

// Close stops accepting requests and waits for in-flight executions to exit.
func (c *LocalChannel) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}
