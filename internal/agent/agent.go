// Package agent implements the LLM assistant: one completion round with
// optional tool dispatch, per-conversation memory, and report outputs.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/llm"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/tools"
	"github.com/zhanyun614531-alt/dingtalk-bot/internal/metrics"
)

// DefaultSystemPrompt declares the fenced-json tool-call protocol to the
// model.
const DefaultSystemPrompt = `你是一个智能助手，具备工具调用能力。

可用工具：
1. 天气查询：{"action": "get_weather", "parameters": {"city": "城市名称"}}
2. 计算器：{"action": "calculator", "parameters": {"expression": "数学表达式"}}
3. 发送邮件：{"action": "send_email", "parameters": {"to": "收件邮箱", "subject": "邮件主题", "body": "邮件内容"}}
4. 读取网页：{"action": "fetch_page", "parameters": {"url": "网页地址"}}
5. 生成报告：{"action": "render_report", "parameters": {"url": "报告页面地址", "name": "报告名称"}}

规则：
1. 需要调用工具时，返回` + "```json和```" + `包裹的JSON
2. 不需要工具时，直接回答问题
3. 用简洁明了的方式回答
`

// Result is the outcome of one assistant invocation.
type Result struct {
	Text   string
	Report *tools.Report
}

// HistoryStore persists conversation turns across restarts.
type HistoryStore interface {
	Append(ctx context.Context, conversationID, role, content string) error
	Recent(ctx context.Context, conversationID string, limit int) ([]llm.Message, error)
}

// Config controls Assistant behavior.
type Config struct {
	SystemPrompt string
	MaxHistory   int
	// Timeout bounds one Process round, model call and tool included.
	// Zero leaves the caller's context in charge.
	Timeout time.Duration
}

// Assistant coordinates the model, the tool registry and memory.
type Assistant struct {
	provider     llm.Provider
	tools        *tools.Registry
	memories     *MemoryStore
	history      HistoryStore
	systemPrompt string
	maxHistory   int
	timeout      time.Duration
	logger       *zap.Logger
}

// New constructs an Assistant. history may be nil for memory-only
// conversations.
func New(
	provider llm.Provider,
	registry *tools.Registry,
	history HistoryStore,
	cfg Config,
	logger *zap.Logger,
) *Assistant {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 10
	}
	return &Assistant{
		provider:     provider,
		tools:        registry,
		memories:     NewMemoryStore(cfg.MaxHistory),
		history:      history,
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   cfg.MaxHistory,
		timeout:      cfg.Timeout,
		logger:       logger,
	}
}

// Ask answers a user request and returns chat text only. Reports, if any,
// are dropped; the async pipeline uses Process instead.
func (a *Assistant) Ask(ctx context.Context, conversationID, input string) (string, error) {
	result, err := a.Process(ctx, conversationID, input)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Process runs one assistant round: complete, dispatch at most one tool
// call, remember the exchange.
func (a *Assistant) Process(ctx context.Context, conversationID, input string) (Result, error) {
	start := time.Now()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	mem := a.memories.Get(conversationID)
	a.seedFromHistory(ctx, conversationID, mem)

	msgs := append(mem.Messages(a.systemPrompt), llm.Message{Role: llm.RoleUser, Content: input})
	response, err := a.provider.Complete(ctx, msgs)
	if err != nil {
		metrics.ObserveAgentRequest(false, time.Since(start))
		return Result{}, fmt.Errorf("assistant completion: %w", err)
	}

	result := Result{Text: response}
	if call, ok := ExtractToolCall(response); ok {
		out, toolErr := a.tools.Invoke(ctx, call.Action, call.Parameters)
		metrics.ObserveToolCall(call.Action, toolErr == nil)
		if toolErr != nil {
			a.logger.Warn("tool invocation failed",
				zap.String("action", call.Action), zap.Error(toolErr))
			result.Text = fmt.Sprintf("处理请求时出错：%v", toolErr)
		} else {
			result.Text = out.Text
			result.Report = out.Report
		}
	}

	a.remember(ctx, conversationID, mem, input, result.Text)
	metrics.ObserveAgentRequest(true, time.Since(start))
	return result, nil
}

// seedFromHistory restores a conversation from the persistent store the
// first time it is seen after a restart.
func (a *Assistant) seedFromHistory(ctx context.Context, conversationID string, mem *Memory) {
	if a.history == nil || mem.Len() > 0 {
		return
	}
	past, err := a.history.Recent(ctx, conversationID, a.maxHistory)
	if err != nil {
		a.logger.Warn("load conversation history failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	if len(past) > 0 {
		mem.Seed(past)
	}
}

func (a *Assistant) remember(ctx context.Context, conversationID string, mem *Memory, input, answer string) {
	mem.Add(llm.RoleUser, input)
	mem.Add(llm.RoleAssistant, answer)
	if a.history == nil {
		return
	}
	if err := a.history.Append(ctx, conversationID, llm.RoleUser, input); err != nil {
		a.logger.Warn("persist user turn failed", zap.Error(err))
	}
	if err := a.history.Append(ctx, conversationID, llm.RoleAssistant, answer); err != nil {
		a.logger.Warn("persist assistant turn failed", zap.Error(err))
	}
}
