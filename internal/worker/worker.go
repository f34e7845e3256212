// Package worker implements the async reply pipeline: consuming queued
// assistant requests and delivering the answers back to the group chat.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/dingtalk"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/metrics"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/storage"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/tasks"
)

// Assistant produces the answer for one queued request.
type Assistant interface {
	Process(ctx context.Context, conversationID, input string) (agent.Result, error)
}

// Sender delivers replies to the group chat. Report links go out as
// markdown so the file name is clickable.
type Sender interface {
	SendText(ctx context.Context, content string, at dingtalk.At) error
	SendMarkdown(ctx context.Context, title, text string, at dingtalk.At) error
}

// Config controls Worker behavior.
type Config struct {
	// ReplyPrefix is prepended to every answer, e.g. "Test1：".
	ReplyPrefix string

	// BlobPrefix namespaces report objects inside the bucket.
	BlobPrefix string

	// TaskTimeout bounds one assistant round trip.
	TaskTimeout time.Duration
}

// Worker consumes queue tasks and executes the reply pipeline.
type Worker struct {
	queue     queue.Queue
	assistant Assistant
	sender    Sender
	registry  *tasks.Registry
	blobs     storage.Provider
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	q queue.Queue,
	assistant Assistant,
	sender Sender,
	registry *tasks.Registry,
	blobs storage.Provider,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if blobs == nil {
		blobs = &storage.NoOpProvider{}
	}
	return &Worker{
		queue:     q,
		assistant: assistant,
		sender:    sender,
		registry:  registry,
		blobs:     blobs,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task",
			zap.String("task_id", task.ID),
			zap.String("conversation_id", task.ConversationID))
		w.processTask(ctx, task)
	}
}

func (w *Worker) processTask(ctx context.Context, task queue.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	w.registry.Begin(task.ConversationID, task.Input)
	defer w.registry.End(task.ConversationID)

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	at := dingtalk.At{AtUserIDs: task.AtUserIDs}

	result, err := w.assistant.Process(taskCtx, task.ConversationID, task.Input)
	if err != nil {
		w.logger.Error("assistant request failed",
			zap.String("task_id", task.ID), zap.Error(err))
		w.reply(ctx, fmt.Sprintf("LLM处理出错: %v", err), at)
		return
	}

	if result.Report != nil {
		w.deliverReport(ctx, taskCtx, result, task, at)
		return
	}
	text := result.Text
	if text == "" {
		text = "LLM返回了空内容"
	}
	w.reply(ctx, text, at)
}

// deliverReport uploads the report blob and sends the link back as a
// markdown message addressed to the requester.
func (w *Worker) deliverReport(ctx, uploadCtx context.Context, result agent.Result, task queue.Task, at dingtalk.At) {
	if !bytes.HasPrefix(result.Report.Data, []byte("%PDF-")) {
		w.logger.Warn("report blob missing PDF header",
			zap.String("task_id", task.ID),
			zap.String("name", result.Report.Name))
	}
	key := storage.ObjectKey(w.cfg.BlobPrefix, result.Report.Name)
	url, err := w.blobs.Upload(uploadCtx, key, result.Report.Data)
	metrics.ObserveReportUpload(err == nil)
	if err != nil {
		w.logger.Error("report upload failed",
			zap.String("task_id", task.ID),
			zap.String("object", key),
			zap.Error(err))
		w.reply(ctx, fmt.Sprintf("%s，但文件上传失败，请稍后重试", result.Text), at)
		return
	}
	if url == "" {
		w.reply(ctx, result.Text, at)
		return
	}
	w.logger.Info("report uploaded",
		zap.String("object", key), zap.String("url", url))

	body := fmt.Sprintf("%s\n\n文件上传成功！[%s](%s)", result.Text, result.Report.Name, url)
	if task.SenderNick != "" {
		body = fmt.Sprintf("**%s** %s", task.SenderNick, body)
	}
	w.replyMarkdown(ctx, result.Report.Name, body, at)
}

func (w *Worker) reply(ctx context.Context, text string, at dingtalk.At) {
	// Replies race shutdown, so give them a grace period independent of
	// the task context.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	err := w.sender.SendText(sendCtx, w.cfg.ReplyPrefix+text, at)
	metrics.ObserveReply(err == nil)
	if err != nil {
		w.logger.Error("send reply failed", zap.Error(err))
	}
}

func (w *Worker) replyMarkdown(ctx context.Context, title, text string, at dingtalk.At) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	err := w.sender.SendMarkdown(sendCtx, title, text, at)
	metrics.ObserveReply(err == nil)
	if err != nil {
		w.logger.Error("send markdown reply failed", zap.Error(err))
	}
}
