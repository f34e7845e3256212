// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Bot     BotConfig     `mapstructure:"bot"`
	Robot   RobotConfig   `mapstructure:"robot"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Email   EmailConfig   `mapstructure:"email"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Browser BrowserConfig `mapstructure:"browser"`
	Storage StorageConfig `mapstructure:"storage"`
	History HistoryConfig `mapstructure:"history"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BotConfig governs command routing behavior.
type BotConfig struct {
	TriggerWord string `mapstructure:"trigger_word"`
}

// RobotConfig holds the DingTalk custom-robot credentials.
type RobotConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	Secret        string `mapstructure:"secret"`
	VerifyInbound bool   `mapstructure:"verify_inbound"`
}

// AgentConfig configures the LLM assistant.
type AgentConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	MaxHistory     int    `mapstructure:"max_history"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EmailConfig holds the Brevo transactional email credentials.
type EmailConfig struct {
	APIKey      string `mapstructure:"api_key"`
	SenderEmail string `mapstructure:"sender_email"`
	SenderName  string `mapstructure:"sender_name"`
}

// WorkerConfig controls the async task pipeline.
type WorkerConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	QueueDepth        int `mapstructure:"queue_depth"`
	TaskTimeoutSec    int `mapstructure:"task_timeout_seconds"`
	StuckAfterSeconds int `mapstructure:"stuck_after_seconds"`
}

// BrowserConfig configures the headless browser subsystem.
type BrowserConfig struct {
	Engine        string `mapstructure:"engine"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
	CheckURL      string `mapstructure:"check_url"`
}

// StorageConfig selects and configures the report blob store.
type StorageConfig struct {
	Provider      string      `mapstructure:"provider"`
	Prefix        string      `mapstructure:"prefix"`
	PublicBaseURL string      `mapstructure:"public_base_url"`
	GCS           GCSConfig   `mapstructure:"gcs"`
	Minio         MinioConfig `mapstructure:"minio"`
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// MinioConfig holds S3-compatible object store settings.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// HistoryConfig controls the conversation history database.
type HistoryConfig struct {
	DSN           string `mapstructure:"dsn"`
	RetainPerConv int    `mapstructure:"retain_per_conversation"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Provider       string `mapstructure:"provider"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DINGTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key Unmarshal reads needs a default (or a BindEnv entry), otherwise
// AutomaticEnv never surfaces it and env-only deployments lose the knob.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("bot.trigger_word", "Test1")
	v.SetDefault("robot.verify_inbound", false)
	v.SetDefault("agent.base_url", "https://ark.cn-beijing.volces.com/api/v3/bots")
	v.SetDefault("agent.model", "bot-20250907084333-cbvff")
	v.SetDefault("agent.max_history", 10)
	v.SetDefault("agent.timeout_seconds", 120)
	v.SetDefault("email.sender_email", "noreply@brevo.com")
	v.SetDefault("email.sender_name", "智能助手")
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.task_timeout_seconds", 300)
	v.SetDefault("worker.stuck_after_seconds", 300)
	v.SetDefault("browser.engine", "chromedp")
	v.SetDefault("browser.max_parallel", 1)
	v.SetDefault("browser.nav_timeout_seconds", 25)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.check_url", "https://www.baidu.com")
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.bucket", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("history.retain_per_conversation", 50)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.topic_id", "")
	v.SetDefault("queue.subscription_id", "")
	v.SetDefault("logging.development", false)
}

// bindLegacyEnv keeps the environment variable names the original deployment
// used, alongside the DINGTALK_-prefixed forms.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "DINGTALK_SERVER_PORT", "PORT", "DINGTALK_PORT")
	_ = v.BindEnv("robot.access_token", "DINGTALK_ROBOT_ACCESS_TOKEN", "ROBOT_ACCESS_TOKEN")
	_ = v.BindEnv("robot.secret", "DINGTALK_ROBOT_SECRET", "ROBOT_SECRET")
	_ = v.BindEnv("agent.api_key", "DINGTALK_AGENT_API_KEY", "ARK_API_KEY")
	_ = v.BindEnv("email.api_key", "DINGTALK_EMAIL_API_KEY", "BREVO_API_KEY")
	_ = v.BindEnv("email.sender_email", "DINGTALK_EMAIL_SENDER_EMAIL", "BREVO_SENDER_EMAIL")
	_ = v.BindEnv("email.sender_name", "DINGTALK_EMAIL_SENDER_NAME", "BREVO_SENDER_NAME")
	_ = v.BindEnv("storage.minio.access_key", "DINGTALK_STORAGE_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.minio.secret_key", "DINGTALK_STORAGE_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
	_ = v.BindEnv("history.dsn", "DINGTALK_HISTORY_DSN", "DATABASE_URL")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Bot.TriggerWord == "" {
		return fmt.Errorf("bot.trigger_word must not be empty")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.Agent.MaxHistory < 0 {
		return fmt.Errorf("agent.max_history must be >= 0")
	}
	switch c.Browser.Engine {
	case "chromedp", "playwright", "none":
	default:
		return fmt.Errorf("browser.engine must be chromedp, playwright or none")
	}
	if c.Browser.Engine != "none" && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs", "minio", "memory", "noop":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket must be set when provider is gcs")
	}
	if c.Storage.Provider == "minio" && (c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "") {
		return fmt.Errorf("storage.minio.endpoint and bucket must be set when provider is minio")
	}
	switch c.Queue.Provider {
	case "memory", "pubsub":
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}
	if c.Queue.Provider == "pubsub" && (c.Queue.ProjectID == "" || c.Queue.TopicID == "") {
		return fmt.Errorf("queue.project_id and topic_id must be set when provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// AgentTimeout bounds one LLM round, including tool execution.
func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

// TaskTimeout bounds a single background agent task.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Worker.TaskTimeoutSec) * time.Second
}

// StuckAfter is the age at which an in-flight task is reported as stuck.
func (c Config) StuckAfter() time.Duration {
	return time.Duration(c.Worker.StuckAfterSeconds) * time.Second
}

// NavTimeout bounds one browser navigation.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
