package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/browser"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/config"
	memqueue "github.com/zhanyun614531-alt/dingtalk-bot/internal/queue/memory"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/storage"
)

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8000, TimeoutSeconds: 30},
		Bot:     config.BotConfig{TriggerWord: "Test1"},
		Robot:   config.RobotConfig{AccessToken: "tok", Secret: "sek"},
		Agent:   config.AgentConfig{Model: "bot-test", MaxHistory: 10, TimeoutSeconds: 120},
		Worker:  config.WorkerConfig{Concurrency: 1, QueueDepth: 4, TaskTimeoutSec: 30, StuckAfterSeconds: 300},
		Browser: config.BrowserConfig{Engine: "none"},
		Storage: config.StorageConfig{Provider: "memory", Prefix: "reports"},
		Queue:   config.QueueConfig{Provider: "memory"},
	}
}

func TestNewAppSuccess(t *testing.T) {
	t.Parallel()

	a, err := NewApp(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.IsType(t, &storage.MemoryProvider{}, a.storage)
	assert.IsType(t, &memqueue.Queue{}, a.queue)
	assert.IsType(t, browser.NoOpEngine{}, a.engine)
	assert.Nil(t, a.history)
	assert.NotNil(t, a.assistant)
	assert.NotNil(t, a.Handler())

	require.NoError(t, a.Close(context.Background()))
}

func TestNewAppNoopStorage(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Provider = "noop"

	a, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.NoOpProvider{}, a.storage)
	require.NoError(t, a.Close(context.Background()))
}

func TestNewAppRejectsUnknownProviders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"storage", func(c *config.Config) { c.Storage.Provider = "ftp" }, "unknown storage provider"},
		{"queue", func(c *config.Config) { c.Queue.Provider = "kafka" }, "unknown queue provider"},
		{"browser", func(c *config.Config) { c.Browser.Engine = "firefox" }, "unknown browser engine"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := NewApp(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewAppRequiresRobotCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Robot.AccessToken = ""

	_, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robot")
}
