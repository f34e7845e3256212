package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/bot"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/config"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/dingtalk"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/queue"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/tasks"
)

type fakeSender struct {
	texts []string
	ats   []dingtalk.At
}

func (f *fakeSender) SendText(_ context.Context, content string, at dingtalk.At) error {
	f.texts = append(f.texts, content)
	f.ats = append(f.ats, at)
	return nil
}

type fakeEnqueuer struct {
	tasks []queue.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task queue.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeEngine struct {
	title string
	err   error
}

func (f *fakeEngine) Title(context.Context, string) (string, error) { return f.title, f.err }
func (f *fakeEngine) Render(context.Context, string) (string, error) {
	return "", f.err
}
func (f *fakeEngine) PDF(context.Context, string) ([]byte, error) { return nil, f.err }
func (f *fakeEngine) Close(context.Context) error                 { return nil }

type fakeIDGen struct{ n int }

func (f *fakeIDGen) NewID() (string, error) {
	f.n++
	return fmt.Sprintf("task-%d", f.n), nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fixture struct {
	server   *Server
	sender   *fakeSender
	enqueuer *fakeEnqueuer
	registry *tasks.Registry
	clock    fixedClock
	cfg      config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Config{}
	cfg.Server.TimeoutSeconds = 30
	cfg.Bot.TriggerWord = "Test1"
	cfg.Browser.Engine = "chromedp"
	cfg.Browser.CheckURL = "https://example.com"
	if mutate != nil {
		mutate(&cfg)
	}

	clock := fixedClock{at: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	sender := &fakeSender{}
	enqueuer := &fakeEnqueuer{}
	registry := tasks.NewRegistry(clock, 5*time.Minute)
	commands := bot.NewRouter("Test1", nil, clock)

	srv := NewServer(commands, sender, enqueuer, registry,
		&fakeEngine{title: "Example Domain"}, &fakeIDGen{}, clock, cfg, zap.NewNop())
	return &fixture{
		server:   srv,
		sender:   sender,
		enqueuer: enqueuer,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
	}
}

func (f *fixture) post(t *testing.T, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func textMessage(content string) dingtalk.InboundMessage {
	return dingtalk.InboundMessage{
		MsgType:        "text",
		Text:           dingtalk.TextField{Content: content},
		ConversationID: "conv-1",
		SenderNick:     "小明",
		AtUsers:        []dingtalk.AtUser{{DingtalkID: "user-1"}},
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registry.Begin("conv-1", "LLM 你好")

	rec := f.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "dingtalk-bot", body["service"])
	require.Equal(t, float64(1), body["active_tasks"])
	require.Equal(t, "2024-03-15T09:00:00Z", body["timestamp"])
}

func TestRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.get(t, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "钉钉机器人服务运行中")

	req := httptest.NewRequest(http.MethodHead, "/", nil)
	head := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(head, req)
	require.Equal(t, http.StatusOK, head.Code)
}

func TestWebhookTimeCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.post(t, "/dingtalk/webhook", textMessage("Test1 时间"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["success"])

	require.Equal(t, []string{"Test1：当前时间: 2024-03-15 09:00:00"}, f.sender.texts)
	require.Equal(t, []string{"user-1"}, f.sender.ats[0].AtUserIDs)
	require.Empty(t, f.enqueuer.tasks)
}

func TestWebhookUsageReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.post(t, "/dingtalk/webhook", textMessage("Test1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sender.texts, 1)
	require.Contains(t, f.sender.texts[0], "请发送具体指令哦~")
}

func TestWebhookAsyncLLM(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.post(t, "/dingtalk/webhook", textMessage("Test1 LLM 北京天气如何"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "processing", body["status"])
	require.Equal(t, "task-1", body["task_id"])

	require.Len(t, f.enqueuer.tasks, 1)
	task := f.enqueuer.tasks[0]
	require.Equal(t, "北京天气如何", task.Input)
	require.Equal(t, "conv-1", task.ConversationID)
	require.Equal(t, []string{"user-1"}, task.AtUserIDs)
	require.Equal(t, f.clock.at, task.Submitted)

	require.Len(t, f.sender.texts, 1)
	require.Contains(t, f.sender.texts[0], "正在思考中")
}

func TestWebhookStripsMentions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	content := `<at id="bot">@Test1</at> Test1 LLM 你好`
	rec := f.post(t, "/dingtalk/webhook", textMessage(content), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.enqueuer.tasks, 1)
	require.Equal(t, "你好", f.enqueuer.tasks[0].Input)
}

func TestWebhookQueueFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.enqueuer.err = context.DeadlineExceeded

	rec := f.post(t, "/dingtalk/webhook", textMessage("Test1 LLM 你好"), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Len(t, f.sender.texts, 1)
	require.Contains(t, f.sender.texts[0], "系统繁忙")
}

func TestWebhookIgnoresNonText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	msg := dingtalk.InboundMessage{MsgType: "picture", ConversationID: "conv-1"}
	rec := f.post(t, "/dingtalk/webhook", msg, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ignored", decodeBody(t, rec)["status"])
	require.Empty(t, f.sender.texts)
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/dingtalk/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func inboundSign(t *testing.T, ts int64, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	_, err := fmt.Fprintf(mac, "%d\n%s", ts, secret)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureVerification(t *testing.T) {
	t.Parallel()

	const secret = "SECtest"
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Robot.Secret = secret
		cfg.Robot.VerifyInbound = true
	})

	ts := f.clock.at.UnixMilli()
	valid := map[string]string{
		"timestamp": strconv.FormatInt(ts, 10),
		"sign":      inboundSign(t, ts, secret),
	}
	rec := f.post(t, "/dingtalk/webhook", textMessage("Test1 时间"), valid)
	require.Equal(t, http.StatusOK, rec.Code)

	invalid := map[string]string{
		"timestamp": strconv.FormatInt(ts, 10),
		"sign":      "bogus",
	}
	rec = f.post(t, "/dingtalk/webhook", textMessage("Test1 时间"), invalid)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.post(t, "/dingtalk/webhook", textMessage("Test1 时间"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.get(t, "/dingtalk/webhook")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "running", decodeBody(t, rec)["status"])
}

func TestDebugTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registry.Begin("conv-1", "LLM 生成报告")

	rec := f.get(t, "/debug/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, float64(1), body["active_count"])
	entries := body["tasks"].([]any)
	entry := entries[0].(map[string]any)
	require.Equal(t, "conv-1", entry["conversation_id"])
	require.Equal(t, "running", entry["status"])
}

func TestServerIP(t *testing.T) {
	t.Parallel()

	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("203.0.113.7"))
	}))
	defer echo.Close()

	f := newFixture(t, nil)
	f.server.SetIPEchoURL(echo.URL)

	rec := f.get(t, "/server-ip")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "203.0.113.7", decodeBody(t, rec)["ip"])
}

func TestBrowserCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rec := f.get(t, "/browser-check")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Example Domain", body["title"])
	require.Equal(t, "chromedp", body["engine"])
}

func TestAPIKeyGuardsOperationalRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "secret"
	})

	rec := f.get(t, "/debug/tasks")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/tasks", nil)
	req.Header.Set("X-API-Key", "secret")
	authed := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(authed, req)
	require.Equal(t, http.StatusOK, authed.Code)

	// probes stay open for the container healthcheck
	require.Equal(t, http.StatusOK, f.get(t, "/health").Code)
	require.Equal(t, http.StatusOK, f.post(t, "/dingtalk/webhook", textMessage("Test1"), nil).Code)
}
