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

// ToolWikipedia is the wikipedia lookup tool name.
const ToolWikipedia = "wikipedia"

const (
	defaultWikipediaEndpoint = "https://en.wikipedia.org/api/rest_v1/page/summary"
	defaultWikipediaTimeout  = 15 * time.Second
)

// WikipediaTool fetches article summaries from the Wikipedia REST API.
type WikipediaTool struct {
	endpoint string
	client   *http.Client
}

// NewWikipediaTool creates a wikipedia tool. An empty endpoint uses the
// public English Wikipedia REST API.
func NewWikipediaTool(endpoint string) *WikipediaTool {
	if endpoint == "" {
		endpoint = defaultWikipediaEndpoint
	}
	return &WikipediaTool{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultWikipediaTimeout},
	}
}

// Name returns the tool name.
func (t *WikipediaTool) Name() string {
	return ToolWikipedia
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WikipediaTool) PromptDocumentation() string {
	return `- **wikipedia** - Look up an encyclopedia summary for a topic
  - Parameters:
    - topic (string, REQUIRED): the article title to look up
  - Returns the article title, summary extract, and canonical URL`
}

// Definition returns the tool definition for the LLM.
func (t *WikipediaTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWikipedia,
		Description: "Look up a Wikipedia article summary for a topic.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"topic": {
					Type:        "string",
					Description: "Article title to look up, e.g. \"Alan Turing\"",
				},
			},
			Required: []string{"topic"},
		},
	}
}

type wikipediaSummary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Type    string `json:"type"`
	Content struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Exec fetches the summary for the requested topic.
func (t *WikipediaTool) Exec(ctx context.Context, args map[string]any) (string, error) {
	topic, err := stringArg(args, "topic")
	if err != nil {
		return "", err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", NewToolError("InvalidArgument", "topic must not be blank")
	}

	// The REST API uses underscores in place of spaces in titles.
	title := strings.ReplaceAll(topic, " ", "_")
	reqURL := t.endpoint + "/" + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build wikipedia request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", NewToolError("ArticleNotFound", "no article found for %q", topic)
	default:
		return "", NewToolError("WikipediaAPIError", "wikipedia API returned status %d", resp.StatusCode)
	}

	var summary wikipediaSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return "", fmt.Errorf("decode wikipedia response: %w", err)
	}

	if summary.Type == "disambiguation" {
		return fmt.Sprintf("%q is ambiguous on Wikipedia. Try a more specific topic.", topic), nil
	}
	if summary.Extract == "" {
		return "", NewToolError("ArticleNotFound", "article %q has no summary", topic)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n%s", summary.Title, summary.Extract)
	if page := summary.Content.Desktop.Page; page != "" {
		fmt.Fprintf(&sb, "\n\nSource: %s", page)
	}
	return sb.String(), nil
}
