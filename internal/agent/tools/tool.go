// Package tools implements the assistant's callable tools and their
// registry. Tool results are chat-facing text: expected failures (missing
// parameters, upstream rejections) come back as user-readable messages, and
// only infrastructure problems surface as errors.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Report is a binary artifact produced by a tool, delivered to the group
// via blob storage instead of inline text.
type Report struct {
	Name string
	Data []byte
}

// Output is the result of one tool invocation.
type Output struct {
	Text   string
	Report *Report
}

// Tool is a named capability the model can request.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, params map[string]any) (Output, error)
}

// Registry dispatches tool calls by action name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Later registrations replace earlier ones.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Names lists the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Invoke runs the named tool. Unknown actions produce a chat-facing message
// rather than an error, matching the tool-call protocol.
func (r *Registry) Invoke(ctx context.Context, action string, params map[string]any) (Output, error) {
	r.mu.RLock()
	t, ok := r.tools[action]
	r.mu.RUnlock()
	if !ok {
		return Output{Text: fmt.Sprintf("未知工具：%s", action)}, nil
	}
	return t.Invoke(ctx, params)
}

// stringParam extracts a trimmed string parameter, tolerating absent keys.
func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}
