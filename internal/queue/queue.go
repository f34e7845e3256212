// Package queue defines the task queue feeding the worker pool. The
// abstraction allows the bot to run on an in-process queue locally and on
// GCP Pub/Sub when replies must survive restarts.
package queue

import (
	"context"
	"time"
)

// Task is one queued assistant request, produced by the webhook handler and
// consumed by a worker.
type Task struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderNick     string    `json:"sender_nick"`
	Input          string    `json:"input"`
	AtUserIDs      []string  `json:"at_user_ids,omitempty"`
	Submitted      time.Time `json:"submitted"`
}

// Queue is the common interface over the queue providers.
type Queue interface {
	// Enqueue hands a task to the queue or returns when the context ends.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue blocks for the next task, respecting context cancellation.
	Dequeue(ctx context.Context) (Task, error)

	// Close releases the provider's resources. Pending Dequeue calls
	// return an error.
	Close() error
}
