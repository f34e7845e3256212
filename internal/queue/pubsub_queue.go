package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PubSubQueue implements Queue on Google Cloud Pub/Sub so queued replies
// survive instance restarts. It authenticates using Application Default
// Credentials.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	inbox chan Task

	startOnce sync.Once
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	closed    bool
}

// NewPubSubQueue creates a Pub/Sub client and verifies that the topic and
// subscription exist.
func NewPubSubQueue(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*PubSubQueue, error) {
	return NewPubSubQueueWithOptions(ctx, projectID, topicID, subscriptionID, logger)
}

// NewPubSubQueueWithOptions is NewPubSubQueue with extra client options,
// used by tests to point the client at a fake server.
func NewPubSubQueueWithOptions(
	ctx context.Context,
	projectID, topicID, subscriptionID string,
	logger *zap.Logger,
	opts ...option.ClientOption,
) (*PubSubQueue, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	sub := client.Subscription(subscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check pubsub subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	return &PubSubQueue{
		client: client,
		topic:  topic,
		sub:    sub,
		logger: logger,
		inbox:  make(chan Task),
	}, nil
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close pubsub client failed", zap.Error(err))
	}
}

// Enqueue publishes the task as a JSON message and waits for the server
// acknowledgment, so webhook callers learn about delivery failures.
func (q *PubSubQueue) Enqueue(ctx context.Context, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: raw})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue blocks for the next task. The first call starts the streaming
// receiver feeding the internal inbox.
func (q *PubSubQueue) Dequeue(ctx context.Context) (Task, error) {
	q.startOnce.Do(q.startReceiver)

	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.inbox:
		if !ok {
			return Task{}, errors.New("queue closed")
		}
		return task, nil
	}
}

func (q *PubSubQueue) startReceiver() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancelMu.Lock()
	if q.closed {
		cancel()
		q.cancelMu.Unlock()
		return
	}
	q.cancel = cancel
	q.cancelMu.Unlock()

	go func() {
		defer close(q.inbox)
		err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			var task Task
			if uerr := json.Unmarshal(msg.Data, &task); uerr != nil {
				q.logger.Warn("discarding malformed queue message", zap.Error(uerr))
				msg.Ack()
				return
			}
			select {
			case q.inbox <- task:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && ctx.Err() == nil {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
		}
	}()
}

// Close stops the receiver, flushes pending publishes and closes the client.
func (q *PubSubQueue) Close() error {
	q.cancelMu.Lock()
	q.closed = true
	cancel := q.cancel
	q.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
