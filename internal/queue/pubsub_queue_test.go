// Package queue_test contains unit tests for the queue package.
package queue_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
)

func newFakePubSub(t *testing.T) *queue.PubSubQueue {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "bot-tasks")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "bot-tasks-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)
	_ = client.Close()

	// reconnect through the constructor under test
	conn2, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn2.Close() })

	q, err := queue.NewPubSubQueueWithOptions(
		ctx, "project-id", "bot-tasks", "bot-tasks-sub", zap.NewNop(),
		option.WithGRPCConn(conn2),
	)
	require.NoError(t, err)
	return q
}

func TestPubSubQueueRoundTrip(t *testing.T) {
	q := newFakePubSub(t)
	defer func() { require.NoError(t, q.Close()) }()

	task := queue.Task{
		ID:             "task-1",
		ConversationID: "conv-1",
		Input:          "查一下北京天气",
		AtUserIDs:      []string{"user-1"},
		Submitted:      time.Now().UTC(),
	}
	require.NoError(t, q.Enqueue(context.Background(), task))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, task.Input, got.Input)
	require.Equal(t, task.AtUserIDs, got.AtUserIDs)
}

func TestPubSubQueueMissingTopic(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = queue.NewPubSubQueueWithOptions(
		ctx, "project-id", "missing", "missing-sub", zap.NewNop(),
		option.WithGRPCConn(conn),
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}
