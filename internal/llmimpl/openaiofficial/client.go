// Package openaiofficial provides an OpenAI implementation of the llm.Client
// interface using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"sidekick/pkg/llm"
	"sidekick/pkg/llm/llmerrors"
	"sidekick/pkg/tools"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.Client.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClient creates an OpenAI client for the given model.
func NewOfficialClient(apiKey, model string) *OfficialClient {
	return &OfficialClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// GetModelName returns the model identifier.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// Complete implements llm.Client using the chat completions API.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := o.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(in.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			toolParams = append(toolParams, convertTool(&in.Tools[i]))
		}
		params.Tools = toolParams
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI API")
	}

	choice := resp.Choices[0]
	var toolCalls []tools.ToolCall
	for i := range choice.Message.ToolCalls {
		call := &choice.Message.ToolCalls[i]
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(
					llmerrors.ErrorTypeEmptyResponse, err, "unparseable tool arguments from OpenAI API")
			}
		}
		toolCalls = append(toolCalls, tools.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return llm.CompletionResponse{
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: toolCalls,
		},
		StopReason: strings.ToLower(string(choice.FinishReason)),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// CompleteStructured implements llm.Client using a strict JSON-schema
// response format decoded into the decision shape.
func (o *OfficialClient) CompleteStructured(ctx context.Context, in llm.CompletionRequest) (llm.EvaluatorDecision, error) {
	params, err := o.buildParams(in)
	if err != nil {
		return llm.EvaluatorDecision{}, err
	}

	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "evaluator_decision",
				Strict: openai.Bool(true),
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
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
					"required":             []string{"feedback", "success_criteria_met", "user_input_needed"},
					"additionalProperties": false,
				},
			},
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.EvaluatorDecision{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return llm.EvaluatorDecision{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI API")
	}

	var decision llm.EvaluatorDecision
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &decision); err != nil {
		return llm.EvaluatorDecision{}, llmerrors.NewErrorWithCause(
			llmerrors.ErrorTypeEmptyResponse, err, "undecodable decision from OpenAI API")
	}
	return decision, nil
}

// buildParams converts a provider-agnostic request to chat completion params.
func (o *OfficialClient) buildParams(in llm.CompletionRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(in.Temperature)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, convertAssistantMessage(msg))
		case llm.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return params, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	params.Messages = messages
	return params, nil
}

// convertAssistantMessage maps an assistant message, carrying its tool calls
// so the API accepts the tool-role replies that follow it.
func convertAssistantMessage(msg *llm.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(args),
				},
			},
		})
	}
	assistant.ToolCalls = calls
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// convertTool maps a tool definition to the function-tool param shape.
func convertTool(def *tools.ToolDefinition) openai.ChatCompletionToolUnionParam {
	properties := make(map[string]any, len(def.InputSchema.Properties))
	for name, prop := range def.InputSchema.Properties {
		properties[name] = map[string]any{
			"type":        prop.Type,
			"description": prop.Description,
		}
	}
	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(def.InputSchema.Required) > 0 {
		parameters["required"] = def.InputSchema.Required
	}
	return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        def.Name,
		Description: openai.String(def.Description),
		Parameters:  openai.FunctionParameters(parameters),
	})
}

// classifyError maps OpenAI SDK errors to classified llm errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		errType := llmerrors.ClassifyHTTPStatus(apiErr.StatusCode)
		return llmerrors.NewErrorWithStatusAndCause(errType, apiErr.StatusCode, err, "OpenAI API error")
	}
	return llmerrors.Classify(err)
}
