package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Version     string          `json:"version,omitempty"`
}

// ToolCall is a single request to run a named tool with JSON arguments.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Code       ErrorCode       `json:"code,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// IsError returns true if the tool execution failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}

// Text returns the result as plain text. Tool adapters return a JSON string
// holding their text message; anything else is returned verbatim.
func (tr ToolResult) Text() string {
	if tr.Error != "" {
		return "Error: " + tr.Error
	}
	var s string
	if err := json.Unmarshal(tr.Result, &s); err == nil {
		return s
	}
	return string(tr.Result)
}
