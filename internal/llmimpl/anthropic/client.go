// Package anthropic provides an Anthropic Claude implementation of the llm.Client interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"sidekick/pkg/llm"
	"sidekick/pkg/llm/llmerrors"
	"sidekick/pkg/tools"
)

const defaultMaxTokens = 4096

// decisionToolName is the forced tool used to obtain structured evaluator output.
const decisionToolName = "record_decision"

// ClaudeClient wraps the Anthropic API client to implement llm.Client.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a Claude client for the given model.
func NewClaudeClient(apiKey, model string) *ClaudeClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// GetModelName returns the model identifier.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// Complete implements llm.Client.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			toolParams = append(toolParams, convertTool(&in.Tools[i]))
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	var text string
	var toolCalls []tools.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(
					llmerrors.ErrorTypeEmptyResponse, err, "unparseable tool input from Claude API")
			}
			toolCalls = append(toolCalls, tools.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}

	return llm.CompletionResponse{
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		},
		StopReason: strings.ToLower(string(resp.StopReason)),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// CompleteStructured implements llm.Client. Claude has no native JSON-schema
// response mode, so the decision is captured through a forced tool call whose
// input schema matches the decision shape.
func (c *ClaudeClient) CompleteStructured(ctx context.Context, in llm.CompletionRequest) (llm.EvaluatorDecision, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return llm.EvaluatorDecision{}, err
	}

	params.Tools = []anthropic.ToolUnionParam{
		anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: map[string]any{
				"feedback": map[string]any{
					"type":        "string",
					"description": "Feedback on the assistant's response",
				},
				"success_criteria_met": map[string]any{
					"type":        "boolean",
					"description": "Whether the success criteria have been met",
				},
				"user_input_needed": map[string]any{
					"type":        "boolean",
					"description": "True if more input is needed from the user, or clarifications, or the assistant is stuck",
				},
			},
		}, decisionToolName),
	}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: decisionToolName},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.EvaluatorDecision{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.EvaluatorDecision{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "tool_use" {
			continue
		}
		toolUse := block.AsToolUse()
		if toolUse.Name != decisionToolName {
			continue
		}
		var decision llm.EvaluatorDecision
		if err := json.Unmarshal(toolUse.Input, &decision); err != nil {
			return llm.EvaluatorDecision{}, llmerrors.NewErrorWithCause(
				llmerrors.ErrorTypeEmptyResponse, err, "undecodable decision from Claude API")
		}
		return decision, nil
	}
	return llm.EvaluatorDecision{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude API response carried no decision")
}

// buildParams converts a provider-agnostic request to Anthropic params. System
// messages move to the dedicated system parameter; tool results become tool
// result blocks in user messages.
func (c *ClaudeClient) buildParams(in llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
	}
	if in.Temperature > 0 {
		params.Temperature = anthropic.Float(in.Temperature)
	}

	var converted []anthropic.MessageParam
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case llm.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case llm.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			converted = append(converted, anthropic.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			isError := strings.HasPrefix(msg.Content, tools.ToolErrorMarker)
			converted = append(converted, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError)))
		default:
			return params, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	params.Messages = converted
	return params, nil
}

// convertTool maps a tool definition to Anthropic's tool param shape.
func convertTool(def *tools.ToolDefinition) anthropic.ToolUnionParam {
	props := make(map[string]any, len(def.InputSchema.Properties))
	for name, prop := range def.InputSchema.Properties {
		props[name] = map[string]any{
			"type":        prop.Type,
			"description": prop.Description,
		}
	}
	return anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
		Properties: props,
		Required:   def.InputSchema.Required,
	}, def.Name)
}

// classifyError maps Anthropic SDK errors to classified llm errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		errType := llmerrors.ClassifyHTTPStatus(apiErr.StatusCode)
		return llmerrors.NewErrorWithStatusAndCause(errType, apiErr.StatusCode, err, "Claude API error")
	}
	return llmerrors.Classify(err)
}
