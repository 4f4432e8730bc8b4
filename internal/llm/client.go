// Package llm is the judge-model collaborator. It supports free-form chat
// completion and structured completion constrained to a single-integer-field
// schema, both over the Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openevals/benchforge/internal/domain"
)

const (
	apiVersion     = "2023-06-01"
	defaultRetries = 3
)

// RankSchema names the single integer field a structured completion must
// return, with the grading scale in its description.
type RankSchema struct {
	Name        string
	Description string
}

// Client calls the judge model. Temperature is pinned to zero: the dialogue
// is scripted and the aggregation downstream is deterministic.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	maxRetries int
	retryDelay time.Duration
	httpc      *http.Client
}

// New creates a Client for the given endpoint and model.
func New(baseURL, apiKey, model string, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		maxRetries: defaultRetries,
		retryDelay: 2 * time.Second,
		httpc:      &http.Client{Timeout: 120 * time.Second},
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	System      string         `json:"system,omitempty"`
	Messages    []apiMessage   `json:"messages"`
	Tools       []apiTool      `json:"tools,omitempty"`
	ToolChoice  *apiToolChoice `json:"tool_choice,omitempty"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

// Complete runs a free-form completion over the dialogue so far and returns
// the assistant's text.
func (c *Client) Complete(ctx context.Context, system string, msgs []domain.Message) (string, error) {
	req := c.newRequest(system, msgs)

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("llm: response contains no text block")
}

// CompleteRank runs a structured completion constrained to the given schema
// and returns its integer rank field.
func (c *Client) CompleteRank(ctx context.Context, system string, msgs []domain.Message, schema RankSchema) (int, error) {
	inputSchema, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"rank": map[string]any{
				"type":        "integer",
				"description": schema.Description,
			},
		},
		"required": []string{"rank"},
	})
	if err != nil {
		return 0, err
	}

	req := c.newRequest(system, msgs)
	req.Tools = []apiTool{{Name: schema.Name, InputSchema: inputSchema}}
	req.ToolChoice = &apiToolChoice{Type: "tool", Name: schema.Name}

	resp, err := c.send(ctx, req)
	if err != nil {
		return 0, err
	}
	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		var out struct {
			Rank *int `json:"rank"`
		}
		if err := json.Unmarshal(block.Input, &out); err != nil {
			return 0, fmt.Errorf("llm: malformed structured output: %w", err)
		}
		if out.Rank == nil {
			return 0, fmt.Errorf("llm: structured output missing rank field")
		}
		return *out.Rank, nil
	}
	return 0, fmt.Errorf("llm: response contains no tool_use block")
}

func (c *Client) newRequest(system string, msgs []domain.Message) *messagesRequest {
	req := &messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		System:      system,
	}
	for _, m := range msgs {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}
		req.Messages = append(req.Messages, apiMessage{Role: role, Content: m.Content})
	}
	return req
}

func (c *Client) send(ctx context.Context, req *messagesRequest) (*messagesResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("llm: status %d: %s", resp.StatusCode, truncate(data, 200))
			continue
		}

		var out messagesResponse
		if err := json.Unmarshal(data, &out); err != nil {
			lastErr = fmt.Errorf("llm: decoding response: %w", err)
			continue
		}
		return &out, nil
	}
	return nil, fmt.Errorf("llm: request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
