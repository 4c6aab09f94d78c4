package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

type echoRunner struct {
	mu       sync.Mutex
	requests []Request
}

func (r *echoRunner) Run(_ context.Context, request Request) Response {
	r.mu.Lock()
	r.requests = append(r.requests, request)
	r.mu.Unlock()
	return Response{Status: StatusCompleted, ExitCode: intPtr(0), Stdout: request.Stdin}
}

type received struct {
	tag      Tag
	response Response
}

func collect(ctx context.Context, t *testing.T, channel Channel) <-chan received {
	t.Helper()
	out := make(chan received, 8)
	go func() {
		_ = channel.Receive(ctx, func(_ context.Context, tag Tag, response *Response) error {
			out <- received{tag: tag, response: *response}
			return nil
		})
	}()
	return out
}

func waitFor(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for execution response")
		return received{}
	}
}

func TestLocalChannelDeliversTaggedResponses(t *testing.T) {
	runner := &echoRunner{}
	channel := NewLocalChannel(runner, 2, zerolog.Nop())
	defer channel.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responses := collect(ctx, t, channel)

	tag := Tag{SolutionID: 3, TestCaseID: 8, Attempt: 1}
	require.NoError(t, channel.Submit(context.Background(), tag, Request{Language: "python", Stdin: "42\n"}))

	got := waitFor(t, responses)
	require.Equal(t, tag, got.tag)
	require.Equal(t, StatusCompleted, got.response.Status)
	require.Equal(t, "42\n", got.response.Stdout)
}

func TestLocalChannelRejectsSubmitAfterClose(t *testing.T) {
	channel := NewLocalChannel(&echoRunner{}, 1, zerolog.Nop())
	require.NoError(t, channel.Close())
	require.ErrorIs(t, channel.Submit(context.Background(), Tag{}, Request{}), ErrChannelClosed)
}

func TestRedisChannelRoundTripsThroughWorker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	queues := QueuesFor("test:execution")
	channel := NewRedisChannel(client, queues, zerolog.Nop())
	runner := &echoRunner{}
	worker := NewRedisWorker(client, queues, runner, "worker-1", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()
	responses := collect(ctx, t, channel)

	tag := Tag{SolutionID: 11, TestCaseID: 12, Attempt: 3}
	require.NoError(t, channel.Submit(ctx, tag, Request{Language: "go", Source: "package main", Stdin: "7\n", Timeout: time.Second}))

	got := waitFor(t, responses)
	require.Equal(t, tag, got.tag)
	require.Equal(t, "7\n", got.response.Stdout)
	require.NotNil(t, got.response.ExitCode)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.requests, 1)
	require.Equal(t, time.Second, runner.requests[0].Timeout)
}

func TestRedisChannelDropsInvalidResponses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	queues := QueuesFor("test:invalid")
	channel := NewRedisChannel(client, queues, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responses := collect(ctx, t, channel)

	require.NoError(t, client.LPush(ctx, queues.Responses, `{"tag":{"solution_id":1}}`).Err())
	require.NoError(t, client.LPush(ctx, queues.Responses, `{"tag":{"solution_id":1,"test_case_id":2,"attempt":1},"response":{"status":"TIMEOUT"}}`).Err())

	got := waitFor(t, responses)
	require.Equal(t, StatusTimeout, got.response.Status)
	require.Equal(t, uint(2), got.tag.TestCaseID)
}

func TestServeRequestSkipsMalformedPayloads(t *testing.T) {
	require.Nil(t, serveRequest(context.Background(), &echoRunner{}, "w", "test", []byte("nope"), zerolog.Nop()))

	payload, err := EncodeRequest(RequestEnvelope{CorrelationID: "c", Tag: Tag{SolutionID: 1, TestCaseID: 1, Attempt: 1}, Request: Request{Stdin: "x"}})
	require.NoError(t, err)
	reply := serveRequest(context.Background(), &echoRunner{}, "w", "test", payload, zerolog.Nop())

	envelope, err := DecodeResponse(reply)
	require.NoError(t, err)
	require.Equal(t, "w", envelope.WorkerID)
	require.Equal(t, "c", envelope.CorrelationID)
	require.Equal(t, "x", envelope.Response.Stdout)
}

func TestRequestPoolAdmitsQueuedWorkUntilClosed(t *testing.T) {
	pool := newRequestPool(semaphore.NewWeighted(1))
	release := make(chan struct{})
	var ran atomic.Int32

	require.True(t, pool.Go(func() {
		<-release
		ran.Add(1)
	}))

	admitted := make(chan bool, 1)
	go func() {
		admitted <- pool.Go(func() { ran.Add(1) })
	}()

	select {
	case <-admitted:
		t.Fatal("second request admitted while the only slot was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case ok := <-admitted:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("queued request was never admitted")
	}

	pool.Close()
	require.Equal(t, int32(2), ran.Load())
	require.False(t, pool.Go(func() { ran.Add(1) }))
	require.Equal(t, int32(2), ran.Load())
}

func TestRequestPoolCloseWaitsForRunningWork(t *testing.T) {
	pool := newRequestPool(semaphore.NewWeighted(2))
	release := make(chan struct{})
	var finished atomic.Bool

	require.True(t, pool.Go(func() {
		<-release
		finished.Store(true)
	}))

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned before running work finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close never returned")
	}
	require.True(t, finished.Load())
}
