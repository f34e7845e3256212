// Package bot routes inbound group messages to commands.
//
// A message addresses the bot with a trigger word (for example
// "Test1 时间"). Short commands are answered synchronously; "LLM" commands
// are expensive and go through the async task pipeline instead.
package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Assistant produces an answer for an LLM command.
type Assistant interface {
	Ask(ctx context.Context, conversationID, input string) (string, error)
}

// Clock abstracts time for the 时间 command.
type Clock interface {
	Now() time.Time
}

// Router parses trigger-word commands and produces reply text.
type Router struct {
	trigger     string
	assistant   Assistant
	clock       Clock
	asyncPrefix *regexp.Regexp
}

// NewRouter constructs a Router for the given trigger word.
func NewRouter(trigger string, assistant Assistant, clock Clock) *Router {
	return &Router{
		trigger:     trigger,
		assistant:   assistant,
		clock:       clock,
		asyncPrefix: regexp.MustCompile(`^` + regexp.QuoteMeta(trigger) + `\s*LLM\s*`),
	}
}

// Prefix prepends the trigger word to a reply, matching the group
// convention "<trigger>：<text>".
func (r *Router) Prefix(msg string) string {
	return fmt.Sprintf("%s：%s", r.trigger, msg)
}

// AsyncInput reports whether content is an LLM command and, if so, returns
// the model input with the trigger prefix removed.
func (r *Router) AsyncInput(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !r.asyncPrefix.MatchString(trimmed) {
		return "", false
	}
	return strings.TrimSpace(r.asyncPrefix.ReplaceAllString(trimmed, "")), true
}

// Handle answers a synchronous command. The returned text already carries
// the trigger prefix and is ready to send.
func (r *Router) Handle(ctx context.Context, conversationID, content string) string {
	command := r.normalize(content)

	switch {
	case command == "":
		return r.Prefix("请发送具体指令哦~ 支持的指令：\n- LLM")
	case command == "时间":
		return r.Prefix(fmt.Sprintf("当前时间: %s", r.clock.Now().Format("2006-01-02 15:04:05")))
	case strings.HasPrefix(command, "LLM"):
		return r.handleLLM(ctx, conversationID, strings.TrimPrefix(command, "LLM"))
	default:
		return r.Prefix(fmt.Sprintf("暂不支持该指令：%s", command))
	}
}

func (r *Router) handleLLM(ctx context.Context, conversationID, input string) string {
	if r.assistant == nil {
		return r.Prefix("LLM处理超时或无响应")
	}
	answer, err := r.assistant.Ask(ctx, conversationID, strings.TrimSpace(input))
	if err != nil {
		return r.Prefix(fmt.Sprintf("LLM处理出错: %v", err))
	}
	if strings.TrimSpace(answer) == "" {
		return r.Prefix("LLM返回了空内容")
	}
	return r.Prefix(answer)
}

// normalize drops every occurrence of the trigger word, then strips all
// whitespace, mirroring how members type commands with arbitrary spacing.
func (r *Router) normalize(content string) string {
	withoutTrigger := strings.ReplaceAll(strings.TrimSpace(content), r.trigger, "")
	return strings.Join(strings.Fields(withoutTrigger), "")
}
