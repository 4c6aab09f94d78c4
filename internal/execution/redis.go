package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisPollTimeout = time.Second

// Queues names the Redis lists requests and responses are pushed onto.
type Queues struct {
	Requests  string
	Responses string
}

// QueuesFor derives the request and response list keys from a prefix.
func QueuesFor(prefix string) Queues {
	if prefix == "" {
		prefix = "gema:exam:execution"
	}
	return Queues{Requests: prefix + ":requests", Responses: prefix + ":responses"}
}

// RedisChannel implements Channel over two Redis lists used as FIFO queues.
type RedisChannel struct {
	client *redis.Client
	queues Queues
	logger zerolog.Logger
}

// NewRedisChannel constructs a Redis list backed channel.
func NewRedisChannel(client *redis.Client, queues Queues, logger zerolog.Logger) *RedisChannel {
	return &RedisChannel{
		client: client,
		queues: queues,
		logger: logger.With().Str("component", "redis_execution_channel").Logger(),
	}
}

func (c *RedisChannel) Submit(ctx context.Context, tag Tag, request Request) error {
	payload, err := EncodeRequest(RequestEnvelope{
		CorrelationID: uuid.NewString(),
		Tag:           tag,
		Request:       request,
	})
	if err != nil {
		return err
	}
	if err := c.client.LPush(ctx, c.queues.Requests, payload).Err(); err != nil {
		return fmt.Errorf("enqueue execution request: %w", err)
	}
	return nil
}

func (c *RedisChannel) Receive(ctx context.Context, handler ResponseHandler) error {
	return popLoop(ctx, c.client, c.queues.Responses, c.logger, func(data []byte) {
		handleResponsePayload(ctx, data, handler, c.logger)
	})
}

// RedisWorker serves execution requests queued on Redis one at a time.
type RedisWorker struct {
	client   *redis.Client
	queues   Queues
	runner   Runner
	workerID string
	logger   zerolog.Logger
}

// NewRedisWorker constructs a worker; run several to serve requests in parallel.
func NewRedisWorker(client *redis.Client, queues Queues, runner Runner, workerID string, logger zerolog.Logger) *RedisWorker {
	return &RedisWorker{
		client:   client,
		queues:   queues,
		runner:   runner,
		workerID: workerID,
		logger:   logger.With().Str("component", "redis_execworker").Str("worker_id", workerID).Logger(),
	}
}

// Run serves requests until ctx is cancelled.
func (w *RedisWorker) Run(ctx context.Context) error {
	w.logger.Info().Str("queue", w.queues.Requests).Msg("execution worker listening")
	return popLoop(ctx, w.client, w.queues.Requests, w.logger, func(data []byte) {
		payload := serveRequest(ctx, w.runner, w.workerID, "redis", data, w.logger)
		if payload == nil {
			return
		}
		if err := w.client.LPush(context.WithoutCancel(ctx), w.queues.Responses, payload).Err(); err != nil {
			w.logger.Error().Err(err).Msg("failed to enqueue execution response")
		}
	})
}

func popLoop(ctx context.Context, client *redis.Client, key string, logger zerolog.Logger, handle func([]byte)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		values, err := client.BRPop(ctx, redisPollTimeout, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Str("queue", key).Msg("failed to pop from redis queue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redisPollTimeout):
			}
			continue
		}
		// BRPOP replies with [key, value].
		if len(values) < 2 {
			continue
		}
		handle([]byte(values[1]))
	}
}
