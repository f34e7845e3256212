// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	q := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(q, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(q, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-q.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := &errorQueue{err: errors.New("boom")}
	dispatch := New(q, nil)

	err := dispatch.Enqueue(context.Background(), queue.Task{ID: "task"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ queue.Task) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (queue.Task, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return queue.Task{}, ctx.Err()
}

func (q *blockingQueue) Close() error { return nil }

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, queue.Task) error { return q.err }

func (q *errorQueue) Dequeue(ctx context.Context) (queue.Task, error) {
	<-ctx.Done()
	return queue.Task{}, ctx.Err()
}

func (q *errorQueue) Close() error { return nil }
