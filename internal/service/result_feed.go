package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

const resultFeedBufferSize = 32

// ResultFeed streams recorded results to live subscribers, fanning out across API
// nodes over Redis pub/sub and NATS when configured.
type ResultFeed interface {
	Subscribe(solutionID uint) (<-chan dto.ResultResponse, func())
	Run(ctx context.Context)
}

type resultFeed struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	subscribers  *xsync.MapOf[uint, []*feedSubscriber]
	nodeID       string
	logger       zerolog.Logger
}

type feedSubscriber struct {
	ch   chan dto.ResultResponse
	done chan struct{}
}

type resultFeedEvent struct {
	Source string             `json:"source"`
	Result dto.ResultResponse `json:"result"`
	SentAt time.Time          `json:"sent_at"`
}

// NewResultFeed constructs a feed fed by ResultRecorded events on bus. Either
// transport may be nil; channelBase names the fanout channel.
func NewResultFeed(bus events.Bus, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) ResultFeed {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":results"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".results"
	}

	feed := &resultFeed{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		subscribers:  xsync.NewMapOf[uint, []*feedSubscriber](),
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "result_feed").Logger(),
	}

	events.Subscribe(bus, feed.onResultRecorded)
	return feed
}

// Run consumes results published by other nodes until ctx is cancelled.
func (f *resultFeed) Run(ctx context.Context) {
	if f.redis != nil && f.redisChannel != "" {
		go f.consumeRedis(ctx)
	}
	if f.nats != nil && f.natsSubject != "" {
		go f.consumeNATS(ctx)
	}
}

func (f *resultFeed) Subscribe(solutionID uint) (<-chan dto.ResultResponse, func()) {
	subscriber := &feedSubscriber{
		ch:   make(chan dto.ResultResponse, resultFeedBufferSize),
		done: make(chan struct{}),
	}

	f.subscribers.Compute(solutionID, func(current []*feedSubscriber, _ bool) ([]*feedSubscriber, bool) {
		next := make([]*feedSubscriber, 0, len(current)+1)
		next = append(next, current...)
		return append(next, subscriber), false
	})
	observability.ResultStreamClients().Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() { f.unsubscribe(solutionID, subscriber) })
	}

	return subscriber.ch, cancel
}

func (f *resultFeed) unsubscribe(solutionID uint, subscriber *feedSubscriber) {
	f.subscribers.Compute(solutionID, func(current []*feedSubscriber, _ bool) ([]*feedSubscriber, bool) {
		next := make([]*feedSubscriber, 0, len(current))
		for _, candidate := range current {
			if candidate != subscriber {
				next = append(next, candidate)
			}
		}
		return next, len(next) == 0
	})
	close(subscriber.done)
	observability.ResultStreamClients().Dec()
}

func (f *resultFeed) onResultRecorded(ctx context.Context, event events.ResultRecorded) error {
	result := dto.NewResultResponse(event.Result)
	observability.ResultFeedEvents().WithLabelValues("local").Inc()
	f.broadcast(result)

	if err := f.publish(ctx, result); err != nil {
		f.logger.Warn().Err(err).Uint("solution_id", result.SolutionID).Msg("failed to fan out result")
	}
	return nil
}

// broadcast never blocks; slow subscribers miss events.
func (f *resultFeed) broadcast(result dto.ResultResponse) {
	subscribers, ok := f.subscribers.Load(result.SolutionID)
	if !ok {
		return
	}
	for _, subscriber := range subscribers {
		select {
		case <-subscriber.done:
		case subscriber.ch <- result:
		default:
			f.logger.Debug().Uint("solution_id", result.SolutionID).Msg("result subscriber is lagging")
		}
	}
}

func (f *resultFeed) publish(ctx context.Context, result dto.ResultResponse) error {
	if (f.redis == nil || f.redisChannel == "") && (f.nats == nil || f.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(resultFeedEvent{
		Source: f.nodeID,
		Result: result,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if f.redis != nil && f.redisChannel != "" {
		if err := f.redis.Publish(ctx, f.redisChannel, payload).Err(); err != nil {
			return err
		}
	}
	if f.nats != nil && f.natsSubject != "" {
		if err := f.nats.Publish(f.natsSubject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (f *resultFeed) consumeRedis(ctx context.Context) {
	pubsub := f.redis.Subscribe(ctx, f.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			f.logger.Error().Err(err).Msg("result feed redis subscription closed")
			return
		}
		f.handleRemote("redis", []byte(msg.Payload))
	}
}

func (f *resultFeed) consumeNATS(ctx context.Context) {
	sub, err := f.nats.Subscribe(f.natsSubject, func(msg *nats.Msg) {
		f.handleRemote("nats", msg.Data)
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to subscribe to nats result subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to drain result feed nats subscription")
		}
	}()
}

func (f *resultFeed) handleRemote(origin string, payload []byte) {
	var event resultFeedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Warn().Err(err).Str("origin", origin).Msg("invalid result feed payload")
		return
	}
	if event.Source == f.nodeID {
		return
	}

	observability.ResultFeedEvents().WithLabelValues(origin).Inc()
	f.broadcast(event.Result)
}
