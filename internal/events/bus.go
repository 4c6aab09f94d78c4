package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler consumes an event.
type Handler func(ctx context.Context, event Event) error

// Bus decouples the managers from one another.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(topic Topic, handler Handler)
}

// Subscribe registers a handler typed to the concrete event it consumes.
func Subscribe[T Event](bus Bus, handler func(ctx context.Context, event T) error) {
	var zero T
	bus.Subscribe(zero.Topic(), func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			return fmt.Errorf("event on topic %s has unexpected type %T", zero.Topic(), event)
		}
		return handler(ctx, typed)
	})
}

// LocalBus delivers events synchronously on the publisher's goroutine. Every
// subscriber runs even when an earlier one fails; the joined errors are returned
// to the publisher.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	logger   zerolog.Logger
}

// NewLocalBus constructs an in-process bus.
func NewLocalBus(logger zerolog.Logger) *LocalBus {
	return &LocalBus{
		handlers: make(map[Topic][]Handler),
		logger:   logger.With().Str("component", "event_bus").Logger(),
	}
}

func (b *LocalBus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return errors.New("event must not be nil")
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Topic()]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug().Str("topic", string(event.Topic())).Msg("event has no subscribers")
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
