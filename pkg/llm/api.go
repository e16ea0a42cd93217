// Package llm defines the provider-agnostic interface to chat completion
// models, plus the retrying invoker that wraps every model call.
package llm

import (
	"context"
	"fmt"
	"strings"

	"sidekick/pkg/tools"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem is the system prompt role.
	RoleSystem Role = "system"
	// RoleUser is the end-user role.
	RoleUser Role = "user"
	// RoleAssistant is the model's role.
	RoleAssistant Role = "assistant"
	// RoleTool carries a tool execution result back to the model.
	RoleTool Role = "tool"
)

// Message is one turn in a model conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the name of the tool that produced a tool-role message.
	ToolName string `json:"tool_name,omitempty"`
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// CompletionRequest is a provider-agnostic chat completion request.
type CompletionRequest struct {
	Messages    []Message              `json:"messages"`
	Tools       []tools.ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
}

// CompletionResponse is a provider-agnostic chat completion response.
type CompletionResponse struct {
	// Message is the assistant message produced by the model. Its ToolCalls
	// field is populated when the model requests tool execution.
	Message Message `json:"message"`

	// StopReason is the provider's stop reason, normalized to lowercase.
	StopReason string `json:"stop_reason,omitempty"`

	// Usage carries token accounting when the provider reports it.
	Usage Usage `json:"usage"`
}

// Usage is token accounting for a single completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// EvaluatorDecision is the structured verdict produced by the evaluator model.
type EvaluatorDecision struct {
	// Feedback explains the verdict and, on rejection, what to fix.
	Feedback string `json:"feedback"`
	// SuccessCriteriaMet reports whether the response satisfies the success criteria.
	SuccessCriteriaMet bool `json:"success_criteria_met"`
	// UserInputNeeded reports whether progress requires more input from the user.
	UserInputNeeded bool `json:"user_input_needed"`
}

// Client is the interface implemented by provider-specific model clients.
type Client interface {
	// Complete performs a chat completion, optionally offering tools.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// CompleteStructured performs a chat completion whose output is decoded
	// into an EvaluatorDecision. A response that cannot be decoded is an error.
	CompleteStructured(ctx context.Context, req CompletionRequest) (EvaluatorDecision, error)

	// GetModelName returns the provider model identifier, for logging and metrics.
	GetModelName() string
}

// FormatConversation renders a conversation as readable text for inclusion in
// an evaluator prompt. Tool activity is summarized rather than inlined.
func FormatConversation(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleUser:
			fmt.Fprintf(&sb, "User: %s\n\n", msg.Content)
		case RoleAssistant:
			content := msg.Content
			if content == "" && msg.HasToolCalls() {
				content = "[Tools use]"
			}
			fmt.Fprintf(&sb, "Assistant: %s\n\n", content)
		case RoleTool:
			// Tool payloads can be large; the evaluator judges the final
			// answer, not the intermediate tool output.
			continue
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
