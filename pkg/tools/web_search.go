package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ToolWebSearch is the web search tool name.
const ToolWebSearch = "web_search"

const (
	defaultSerperEndpoint = "https://google.serper.dev/search"
	defaultSearchTimeout  = 15 * time.Second
	maxSearchResults      = 8
)

// SearchResult is a single result returned by a search provider.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchProvider performs a web search and returns ranked results.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SerperProvider implements SearchProvider using the Serper.dev API.
type SerperProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSerperProvider creates a Serper-backed search provider.
func NewSerperProvider(apiKey, endpoint string) *SerperProvider {
	if endpoint == "" {
		endpoint = defaultSerperEndpoint
	}
	return &SerperProvider{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultSearchTimeout},
	}
}

type serperRequest struct {
	Query string `json:"q"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Title   string `json:"title"`
	} `json:"answerBox"`
}

// Search queries Serper and returns organic results, with any answer box
// surfaced as the first result.
func (p *SerperProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(serperRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewToolError("SearchAPIError", "search API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var results []SearchResult
	if box := parsed.AnswerBox; box != nil {
		snippet := box.Answer
		if snippet == "" {
			snippet = box.Snippet
		}
		if snippet != "" {
			results = append(results, SearchResult{
				Title:   box.Title,
				Snippet: snippet,
			})
		}
	}
	for _, item := range parsed.Organic {
		results = append(results, SearchResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
		if len(results) >= maxSearchResults {
			break
		}
	}
	return results, nil
}

// WebSearchTool exposes a SearchProvider to the model.
type WebSearchTool struct {
	provider SearchProvider
}

// NewWebSearchTool creates a web_search tool backed by the given provider.
func NewWebSearchTool(provider SearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

// Name returns the tool name.
func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WebSearchTool) PromptDocumentation() string {
	return `- **web_search** - Search the web for current information
  - Parameters:
    - query (string, REQUIRED): the search query
  - Returns titles, URLs, and snippets of the top results`
}

// Definition returns the tool definition for the LLM.
func (t *WebSearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWebSearch,
		Description: "Search the web and return the top results with titles, URLs, and snippets.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "The search query",
				},
			},
			Required: []string{"query"},
		},
	}
}

// Exec runs the search and formats results as readable text.
func (t *WebSearchTool) Exec(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(query) == "" {
		return "", NewToolError("InvalidArgument", "query must not be blank")
	}

	results, err := t.provider.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&sb, "   %s\n", r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		if i < len(results)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
