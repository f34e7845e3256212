// Package api exposes the HTTP interface for the bot service.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/bot"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/browser"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/config"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/dingtalk"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/metrics"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/tasks"
)

// Version is the service version reported by the health endpoint.
const Version = "2.0.0"

const serviceName = "dingtalk-bot"

// DefaultIPEchoURL answers with the caller's public address.
const DefaultIPEchoURL = "https://api.ipify.org"

// Enqueuer hands async tasks to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// Sender delivers replies to the group chat.
type Sender interface {
	SendText(ctx context.Context, content string, at dingtalk.At) error
}

// IDGenerator mints task IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Server wires HTTP handlers to the bot pipeline.
type Server struct {
	router     chi.Router
	commands   *bot.Router
	sender     Sender
	enqueuer   Enqueuer
	registry   *tasks.Registry
	engine     browser.Engine
	idGen      IDGenerator
	clock      Clock
	cfg        config.Config
	ipEchoURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	commands *bot.Router,
	sender Sender,
	enqueuer Enqueuer,
	registry *tasks.Registry,
	engine browser.Engine,
	idGen IDGenerator,
	clock Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		commands:   commands,
		sender:     sender,
		enqueuer:   enqueuer,
		registry:   registry,
		engine:     engine,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		ipEchoURL:  DefaultIPEchoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	if engine == nil {
		s.engine = browser.NoOpEngine{}
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey, []string{"/", "/health", "/dingtalk/webhook"}))
	}

	r.Get("/", s.root)
	r.Head("/", s.root)
	r.Get("/health", s.health)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/dingtalk/webhook", s.webhookStatus)
	r.Post("/dingtalk/webhook", s.webhook)
	r.Get("/debug/tasks", s.debugTasks)
	r.Get("/server-ip", s.serverIP)
	r.Get("/browser-check", s.browserCheck)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetIPEchoURL overrides the public-IP lookup endpoint, for tests.
func (s *Server) SetIPEchoURL(url string) {
	s.ipEchoURL = url
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "钉钉机器人服务运行中",
		"service": serviceName,
		"version": Version,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"service":      serviceName,
		"version":      Version,
		"timestamp":    s.clock.Now().UTC().Format(time.RFC3339),
		"active_tasks": s.registry.Count(),
	})
}

func (s *Server) webhookStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"message": "钉钉机器人webhook已就绪",
	})
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Robot.VerifyInbound && !s.verifySignature(r) {
		metrics.ObserveMessage("rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var msg dingtalk.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg.MsgType != "text" {
		metrics.ObserveMessage("ignored")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ignored"})
		return
	}
	metrics.ObserveMessage("text")

	content := dingtalk.StripMentions(msg.Text.Content)
	at := dingtalk.At{AtUserIDs: msg.AtUserIDs()}

	if input, ok := s.commands.AsyncInput(content); ok {
		s.handleAsync(r.Context(), w, msg, input, at)
		return
	}

	reply := s.commands.Handle(r.Context(), msg.ConversationID, content)
	s.send(r.Context(), reply, at)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleAsync queues the LLM request and acknowledges immediately so the
// webhook never outlives DingTalk's callback deadline.
func (s *Server) handleAsync(ctx context.Context, w http.ResponseWriter, msg dingtalk.InboundMessage, input string, at dingtalk.At) {
	taskID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate task id failed")
		return
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	task := queue.Task{
		ID:             taskID,
		ConversationID: msg.ConversationID,
		SenderNick:     msg.SenderNick,
		Input:          input,
		AtUserIDs:      at.AtUserIDs,
		Submitted:      s.clock.Now(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, task); err != nil {
		s.logger.Error("enqueue task failed",
			zap.String("task_id", taskID), zap.Error(err))
		s.send(ctx, s.commands.Prefix("系统繁忙，请稍后再试"), at)
		writeError(w, http.StatusServiceUnavailable, "queue full")
		return
	}

	s.send(ctx, s.commands.Prefix("正在思考中，请稍等片刻... ⏳"), at)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "processing",
		"task_id": taskID,
	})
}

func (s *Server) verifySignature(r *http.Request) bool {
	ts, err := strconv.ParseInt(r.Header.Get("timestamp"), 10, 64)
	if err != nil {
		return false
	}
	sign := r.Header.Get("sign")
	return dingtalk.VerifyInbound(ts, sign, s.cfg.Robot.Secret, s.clock.Now())
}

func (s *Server) send(ctx context.Context, text string, at dingtalk.At) {
	err := s.sender.SendText(ctx, text, at)
	metrics.ObserveReply(err == nil)
	if err != nil {
		s.logger.Error("send reply failed", zap.Error(err))
	}
}

func (s *Server) debugTasks(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_count": len(snapshot),
		"server_time":  s.clock.Now().Format(time.RFC3339),
		"tasks":        snapshot,
	})
}

func (s *Server) serverIP(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.ipEchoURL, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "build IP lookup request failed")
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "IP lookup failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil || resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, "IP lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ip": string(body)})
}

func (s *Server) browserCheck(w http.ResponseWriter, r *http.Request) {
	url := s.cfg.Browser.CheckURL
	if url == "" {
		url = "https://www.baidu.com"
	}

	start := s.clock.Now()
	title, err := s.engine.Title(r.Context(), url)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"engine":  s.cfg.Browser.Engine,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"engine":      s.cfg.Browser.Engine,
		"url":         url,
		"title":       title,
		"duration_ms": s.clock.Now().Sub(start).Milliseconds(),
	})
}
