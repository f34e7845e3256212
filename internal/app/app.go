// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/llm"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/llm/openai"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/tools"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/api"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/bot"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/browser"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/clock/system"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/config"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/dingtalk"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/dispatcher"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/history"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/id/uuid"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/metrics"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue/memory"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/storage"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/tasks"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/worker"
)

// App holds all the shared, long-lived services for the bot. It is
// initialized once at startup and torn down on shutdown.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	storage    storage.Provider
	history    *history.Store
	queue      queue.Queue
	engine     browser.Engine
	robot      *dingtalk.Client
	assistant  *agent.Assistant
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
}

// NewApp creates and initializes the service graph from the configuration.
// It fails fast if any critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	clk := system.New()

	a := &App{cfg: cfg, logger: logger}

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.storage = store

	historyStore, err := newHistory(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.history = historyStore

	q, err := newQueue(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.queue = q

	engine, err := newEngine(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine

	robot, err := dingtalk.NewClient(dingtalk.Config{
		AccessToken: cfg.Robot.AccessToken,
		Secret:      cfg.Robot.Secret,
	}, clk, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize robot client: %w", err)
	}
	a.robot = robot

	a.assistant = newAssistant(cfg, engine, historyStore, clk, logger)

	registry := tasks.NewRegistry(clk, cfg.StuckAfter())
	commands := bot.NewRouter(cfg.Bot.TriggerWord, a.assistant, clk)

	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	workerCfg := worker.Config{
		ReplyPrefix: cfg.Bot.TriggerWord + "：",
		BlobPrefix:  cfg.Storage.Prefix,
		TaskTimeout: cfg.TaskTimeout(),
	}
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(q, a.assistant, robot, registry, store, workerCfg, logger))
	}
	a.dispatcher = dispatcher.New(q, workers)

	a.server = api.NewServer(commands, robot, a.dispatcher, registry, engine,
		uuid.NewUUIDGenerator(), clk, cfg, logger)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("browser", cfg.Browser.Engine),
		zap.Int("workers", cfg.Worker.Concurrency))
	return a, nil
}

// Handler returns the HTTP handler serving the bot API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// RunWorkers starts the worker pool and blocks until the context finishes.
func (a *App) RunWorkers(ctx context.Context) {
	a.dispatcher.Run(ctx)
}

// Close releases every held resource. Safe to call after a partial
// initialization failure.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.engine != nil {
		if err := a.engine.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.history != nil {
		a.history.Close()
	}
	return firstErr
}

func (a *App) close() {
	if err := a.Close(context.Background()); err != nil {
		a.logger.Warn("teardown after init failure", zap.Error(err))
	}
}

func newStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("using GCS storage provider", zap.String("bucket", cfg.Storage.GCS.Bucket))
		store, err := storage.NewGCSProvider(ctx, cfg.Storage.GCS.Bucket, cfg.Storage.PublicBaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs storage: %w", err)
		}
		return store, nil
	case "minio":
		logger.Info("using MinIO storage provider",
			zap.String("endpoint", cfg.Storage.Minio.Endpoint),
			zap.String("bucket", cfg.Storage.Minio.Bucket))
		store, err := storage.NewMinioProvider(ctx, storage.MinioConfig{
			Endpoint:      cfg.Storage.Minio.Endpoint,
			Bucket:        cfg.Storage.Minio.Bucket,
			AccessKey:     cfg.Storage.Minio.AccessKey,
			SecretKey:     cfg.Storage.Minio.SecretKey,
			UseSSL:        cfg.Storage.Minio.UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize minio storage: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("using in-memory storage provider")
		return storage.NewMemoryProvider(cfg.Storage.PublicBaseURL), nil
	case "noop":
		logger.Info("using no-op storage provider, report files will be discarded")
		return &storage.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func newHistory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*history.Store, error) {
	if cfg.History.DSN == "" {
		logger.Info("conversation history persistence disabled")
		return nil, nil
	}
	logger.Info("connecting to PostgreSQL for conversation history")
	store, err := history.NewStore(ctx, history.StoreConfig{
		DSN:           cfg.History.DSN,
		RetainPerConv: cfg.History.RetainPerConv,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize history store: %w", err)
	}
	return store, nil
}

func newQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (queue.Queue, error) {
	switch cfg.Queue.Provider {
	case "pubsub":
		logger.Info("connecting to GCP Pub/Sub",
			zap.String("topic", cfg.Queue.TopicID),
			zap.String("subscription", cfg.Queue.SubscriptionID))
		q, err := queue.NewPubSubQueue(ctx, cfg.Queue.ProjectID, cfg.Queue.TopicID, cfg.Queue.SubscriptionID, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub queue: %w", err)
		}
		return q, nil
	case "memory":
		logger.Info("using in-memory task queue", zap.Int("depth", cfg.Worker.QueueDepth))
		return memory.NewQueue(cfg.Worker.QueueDepth), nil
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", cfg.Queue.Provider)
	}
}

func newEngine(cfg config.Config, logger *zap.Logger) (browser.Engine, error) {
	engineCfg := browser.Config{
		MaxParallel: cfg.Browser.MaxParallel,
		NavTimeout:  cfg.NavTimeout(),
		UserAgent:   cfg.Browser.UserAgent,
	}
	switch cfg.Browser.Engine {
	case "chromedp":
		logger.Info("starting chromedp browser engine")
		engine, err := browser.NewChromedpEngine(engineCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize chromedp engine: %w", err)
		}
		return engine, nil
	case "playwright":
		logger.Info("starting playwright browser engine")
		engine, err := browser.NewPlaywrightEngine(engineCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize playwright engine: %w", err)
		}
		return engine, nil
	case "none":
		logger.Info("browser engine disabled")
		return browser.NoOpEngine{}, nil
	default:
		return nil, fmt.Errorf("unknown browser engine: %s", cfg.Browser.Engine)
	}
}

func newAssistant(cfg config.Config, engine browser.Engine, historyStore *history.Store, clk *system.Clock, logger *zap.Logger) *agent.Assistant {
	registry := tools.NewRegistry()
	registry.Register(tools.NewWeather("", nil))
	registry.Register(tools.NewCalculator())
	registry.Register(tools.NewEmail(tools.EmailConfig{
		APIKey:      cfg.Email.APIKey,
		SenderEmail: cfg.Email.SenderEmail,
		SenderName:  cfg.Email.SenderName,
	}, nil))
	registry.Register(tools.NewFetchPage(cfg.Browser.UserAgent, engine))
	registry.Register(tools.NewRenderReport(engine, clk))

	var provider llm.Provider = unconfiguredProvider{}
	if cfg.Agent.APIKey != "" {
		p, err := openai.NewProvider(cfg.Agent.APIKey,
			openai.WithModel(cfg.Agent.Model),
			openai.WithBaseURL(cfg.Agent.BaseURL))
		if err != nil {
			logger.Warn("LLM provider initialization failed", zap.Error(err))
		} else {
			provider = p
		}
	} else {
		logger.Warn("LLM provider not configured, assistant commands will fail")
	}

	var store agent.HistoryStore
	if historyStore != nil {
		store = historyStore
	}
	return agent.New(provider, registry, store, agent.Config{
		MaxHistory: cfg.Agent.MaxHistory,
		Timeout:    cfg.AgentTimeout(),
	}, logger)
}

type unconfiguredProvider struct{}

func (unconfiguredProvider) Complete(context.Context, []llm.Message) (string, error) {
	return "", fmt.Errorf("ARK_API_KEY is not configured")
}
