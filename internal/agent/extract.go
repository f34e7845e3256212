package agent

import (
	"encoding/json"
	"strings"
)

// ToolCall is a tool invocation the model requested via the fenced-json
// protocol.
type ToolCall struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ExtractToolCall scans a model response for the first fenced json block and
// parses it as a tool call. It returns false when the response is a plain
// answer or the block is not a well-formed call.
func ExtractToolCall(response string) (ToolCall, bool) {
	start := strings.Index(response, fenceOpen)
	if start < 0 {
		return ToolCall{}, false
	}
	rest := response[start+len(fenceOpen):]
	end := strings.Index(rest, fenceClose)
	if end < 0 {
		return ToolCall{}, false
	}

	var call ToolCall
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &call); err != nil {
		return ToolCall{}, false
	}
	if call.Action == "" || call.Parameters == nil {
		return ToolCall{}, false
	}
	return call, true
}
