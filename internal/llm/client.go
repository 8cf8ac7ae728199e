package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is one chat-completion call. JSONMode asks the provider for a
// response_format of json_object.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Client abstracts the completion provider so tests can script responses.
type Client interface {
	ChatJSON(ctx context.Context, req Request) (string, error)
}

// HTTPClient talks to an OpenAI-compatible /chat/completions endpoint with
// bearer auth.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatJSON performs one completion attempt and returns the raw assistant
// message content.
func (c *HTTPClient) ChatJSON(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", newError(ErrNoAPIKey, "completion API key not configured")
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", wrapError(ErrBadResponse, err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", wrapError(ErrTransport, err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", wrapError(ErrTransport, err, "completion API call failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapError(ErrTransport, err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", newError(ErrRateLimited, "rate limited: %s", truncateForLog(respBody))
	case resp.StatusCode >= 500:
		return "", newError(ErrTransport, "completion API error %d: %s", resp.StatusCode, truncateForLog(respBody))
	case resp.StatusCode != http.StatusOK:
		return "", &Error{
			Code:    ErrBadResponse,
			Message: fmt.Sprintf("completion API error %d: %s", resp.StatusCode, truncateForLog(respBody)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", wrapError(ErrBadResponse, err, "parse completion response")
	}
	if parsed.Error != nil {
		return "", newError(ErrBadResponse, "provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", newError(ErrBadResponse, "empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncateForLog(b []byte) string {
	const limit = 300
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
