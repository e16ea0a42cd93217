package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ToolPushNotification is the push notification tool name.
const ToolPushNotification = "push_notification"

const (
	defaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"
	defaultPushTimeout      = 10 * time.Second
	maxPushMessageLen       = 1024
)

// PushTool sends a push notification to the user via Pushover.
type PushTool struct {
	token    string
	userKey  string
	endpoint string
	client   *http.Client
}

// NewPushTool creates a push_notification tool. An empty endpoint uses the
// public Pushover API.
func NewPushTool(token, userKey, endpoint string) *PushTool {
	if endpoint == "" {
		endpoint = defaultPushoverEndpoint
	}
	return &PushTool{
		token:    token,
		userKey:  userKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultPushTimeout},
	}
}

// Name returns the tool name.
func (t *PushTool) Name() string {
	return ToolPushNotification
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *PushTool) PromptDocumentation() string {
	return `- **push_notification** - Send a brief push notification to the user's device
  - Parameters:
    - message (string, REQUIRED): the notification text (max 1024 characters)
  - Use only when the user has asked to be notified`
}

// Definition returns the tool definition for the LLM.
func (t *PushTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolPushNotification,
		Description: "Send a brief push notification to the user's device.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"message": {
					Type:        "string",
					Description: "The notification text",
				},
			},
			Required: []string{"message"},
		},
	}
}

type pushoverResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

// Exec sends the notification.
func (t *PushTool) Exec(ctx context.Context, args map[string]any) (string, error) {
	message, err := stringArg(args, "message")
	if err != nil {
		return "", err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", NewToolError("InvalidArgument", "message must not be blank")
	}
	if len(message) > maxPushMessageLen {
		message = message[:maxPushMessageLen]
	}

	form := url.Values{}
	form.Set("token", t.token)
	form.Set("user", t.userKey)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed pushoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Status != 1 {
		detail := strings.Join(parsed.Errors, "; ")
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", NewToolError("PushAPIError", "push notification failed: %s", detail)
	}

	return "Notification sent.", nil
}
