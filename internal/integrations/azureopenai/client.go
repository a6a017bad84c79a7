package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hospital-chat/internal/domain"
)

const (
	DefaultAPIVersion = "2024-02-01"
	DefaultTimeout    = 30 * time.Second

	temperature      = 0.7
	maxTokens        = 600
	topP             = 0.95
	frequencyPenalty = 0.0
	presencePenalty  = 0.0
)

// chatRequest carries the fixed generation parameters; none of them are
// caller controlled.
type chatRequest struct {
	Messages         []domain.ChatMessage `json:"messages"`
	Temperature      float64              `json:"temperature"`
	MaxTokens        int                  `json:"max_tokens"`
	TopP             float64              `json:"top_p"`
	FrequencyPenalty float64              `json:"frequency_penalty"`
	PresencePenalty  float64              `json:"presence_penalty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int                `json:"index"`
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("azureopenai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the chat completions endpoint of an Azure OpenAI deployment.
type Client struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(version); v != "" {
			c.apiVersion = v
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds every completion call. It applies on top of any client
// given to WithHTTPClient regardless of option order. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(endpoint, apiKey, deployment string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azureopenai: endpoint must not be empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("azureopenai: api key must not be empty")
	}
	deployment = strings.TrimSpace(deployment)
	if deployment == "" {
		return nil, errors.New("azureopenai: deployment must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		deployment: deployment,
		apiVersion: DefaultAPIVersion,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.resolvedHTTPClient()
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func completionsURL(endpoint, deployment, apiVersion string) string {
	base := strings.TrimRight(endpoint, "/")
	q := url.Values{}
	q.Set("api-version", apiVersion)
	return base + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions?" + q.Encode()
}

// Complete sends one chat completion request. A single attempt is made;
// callers decide what a failure means.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error) {
	if len(messages) == 0 {
		return domain.Completion{}, errors.New("azureopenai: messages must not be empty")
	}

	body, err := json.Marshal(chatRequest{
		Messages:         messages,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		TopP:             topP,
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("azureopenai: marshal request: %w", err)
	}

	u := completionsURL(c.endpoint, c.deployment, c.apiVersion)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if reqErr != nil {
		return domain.Completion{}, fmt.Errorf("azureopenai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("azureopenai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return domain.Completion{}, fmt.Errorf("azureopenai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return domain.Completion{}, errors.New("azureopenai: no choices in response")
	}
	text := payload.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return domain.Completion{}, errors.New("azureopenai: empty completion content")
	}

	out := domain.Completion{Text: text}
	if payload.Usage != nil {
		out.TotalTokens = payload.Usage.TotalTokens
	}
	return out, nil
}

func (c *Client) doJSONRequest(req *http.Request, u string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        u,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
