// Package tools provides the tool registry and the error-isolating dispatcher
// used by the orchestrator's TOOLS stage.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Property defines a parameter in a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema describes the JSON schema of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the model-facing description of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ToolCall is a structured request from the worker model to execute a named
// tool with the given arguments.
type ToolCall struct {
	Arguments map[string]any `json:"arguments"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
}

// Tool is the interface all tool implementations satisfy.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the tool's model-facing definition.
	Definition() ToolDefinition
	// Exec executes the tool with the given arguments and returns plain text.
	Exec(ctx context.Context, args map[string]any) (string, error)
	// PromptDocumentation returns markdown documentation for LLM prompts.
	PromptDocumentation() string
}

// ToolError is an error with an explicit kind, so tool implementations can
// name their failure modes the way the dispatcher reports them.
type ToolError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a kinded tool error.
func NewToolError(kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorKindNotFound is reported when a requested tool is not registered.
const ErrorKindNotFound = "ToolNotFound"

// ErrorKindPanic is reported when a tool implementation panics.
const ErrorKindPanic = "ToolPanic"

// ErrorKind classifies an error from a tool execution into a short kind name.
// Kinded tool errors report their own kind; context timeouts and cancellation
// map to explicit kinds; anything else falls back to the error's type name.
func ErrorKind(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError"
	}
	if errors.Is(err, context.Canceled) {
		return "CanceledError"
	}

	kind := fmt.Sprintf("%T", err)
	kind = strings.TrimPrefix(kind, "*")
	if idx := strings.LastIndex(kind, "."); idx >= 0 {
		kind = kind[idx+1:]
	}
	if kind == "errorString" {
		return "ToolExecutionError"
	}
	return kind
}
