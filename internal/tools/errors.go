// Structured error envelope and sentinel error types for tool
// execution.
package tools

import (
	"encoding/json"
	"fmt"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the effective registry. This is a capability
// mismatch, not a transient execution failure; the loop surfaces it to
// the model as an error result rather than retrying.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// errorEnvelope is the wire shape every failed tool call reduces to.
// Tool servers differ in their success payloads, but errors are always
// {"status":"error","message":...} so the loop can detect them without
// per-tool knowledge.
type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResult encodes a failure message into the structured error
// envelope.
func ErrorResult(message string) string {
	data, err := json.Marshal(errorEnvelope{Status: "error", Message: message})
	if err != nil {
		// Marshalling a two-string struct cannot realistically fail;
		// keep a plain-text fallback anyway.
		return `{"status":"error","message":"tool execution failed"}`
	}
	return string(data)
}

// IsErrorResult reports whether a tool result payload is the structured
// error envelope. Non-JSON payloads are success payloads by definition.
func IsErrorResult(result string) bool {
	var env errorEnvelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		return false
	}
	return env.Status == "error"
}

// ErrorMessage extracts the message from an error envelope, or "" when
// result is not one.
func ErrorMessage(result string) string {
	var env errorEnvelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		return ""
	}
	if env.Status != "error" {
		return ""
	}
	return env.Message
}
