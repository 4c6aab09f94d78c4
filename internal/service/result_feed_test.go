package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/dto"
	"github.com/noah-isme/gema-exam-api/internal/events"
	"github.com/noah-isme/gema-exam-api/internal/models"
)

func recordedResult(solutionID, testCaseID uint, outcome models.ResultOutcome) events.ResultRecorded {
	return events.ResultRecorded{Result: models.ExerciseSolutionResult{
		ID:         testCaseID,
		SolutionID: solutionID,
		TestCaseID: testCaseID,
		Result:     outcome,
		Attempt:    1,
	}}
}

func receiveResult(t *testing.T, ch <-chan dto.ResultResponse) dto.ResultResponse {
	t.Helper()
	select {
	case result := <-ch:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return dto.ResultResponse{}
	}
}

func TestResultFeedDeliversToSolutionSubscribers(t *testing.T) {
	bus := events.NewLocalBus(zerolog.Nop())
	feed := NewResultFeed(bus, nil, nil, "", zerolog.Nop())

	mine, cancelMine := feed.Subscribe(5)
	defer cancelMine()
	other, cancelOther := feed.Subscribe(6)
	defer cancelOther()

	require.NoError(t, bus.Publish(context.Background(), recordedResult(5, 1, models.ResultApproved)))

	result := receiveResult(t, mine)
	require.Equal(t, uint(5), result.SolutionID)
	require.Equal(t, "APPROVED", result.Result)
	require.True(t, result.Marked)

	select {
	case unexpected := <-other:
		t.Fatalf("unexpected delivery %+v", unexpected)
	default:
	}
}

func TestResultFeedUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewLocalBus(zerolog.Nop())
	feed := NewResultFeed(bus, nil, nil, "", zerolog.Nop())

	ch, cancel := feed.Subscribe(5)
	cancel()
	cancel()

	require.NoError(t, bus.Publish(context.Background(), recordedResult(5, 1, models.ResultFailed)))
	select {
	case unexpected := <-ch:
		t.Fatalf("unexpected delivery %+v", unexpected)
	default:
	}

	_, ok := feed.(*resultFeed).subscribers.Load(5)
	require.False(t, ok)
}

func TestResultFeedFansOutOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	publisherBus := events.NewLocalBus(zerolog.Nop())
	NewResultFeed(publisherBus, newClient(), nil, "gema:exam", zerolog.Nop())

	remote := NewResultFeed(events.NewLocalBus(zerolog.Nop()), newClient(), nil, "gema:exam", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote.Run(ctx)

	ch, unsubscribe := remote.Subscribe(8)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("gema:exam:results")["gema:exam:results"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, publisherBus.Publish(context.Background(), recordedResult(8, 3, models.ResultTimedOut)))

	result := receiveResult(t, ch)
	require.Equal(t, uint(3), result.TestCaseID)
	require.Equal(t, "TIMED_OUT", result.Result)
}
