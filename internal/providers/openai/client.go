// Package openai calls the chat completions endpoint for direct text
// generation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/providers/ratelimit"
)

// ProviderName identifies jobs produced through OpenAI.
const ProviderName = "openai"

const (
	opChat             = "openai.chat"
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 90 * time.Second
	defaultTemperature = 0.6
	systemPrompt       = "You are a research assistant that turns source material into well structured notes. Answer in the language the user asks for."
)

var modelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
}

var modelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
}

// Options configures the client.
type Options struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Limiter      *ratelimit.Limiter
	Logger       *infra.Logger
}

// Client is an OpenAI chat completions client.
type Client struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	limiter      *ratelimit.Limiter
	logger       *infra.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewClient builds a client. An unsupported model falls back to the default
// and is reported through the logger.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	logger := infra.OrDiscard(opts.Logger)
	requested := strings.TrimSpace(opts.Model)
	model, reason := normalizeModel(requested)
	if reason != "" {
		logger.Warn().
			Str("requested", requested).
			Str("resolved", model).
			Str("reason", reason).
			Msg("openai: model normalized")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		limiter:      opts.Limiter,
		logger:       logger,
	}, nil
}

func (c *Client) Name() string         { return ProviderName }
func (c *Client) Model() string        { return c.model }
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: complete: %w", domain.ErrMissingAPIKey)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("openai: complete: %w: empty prompt", domain.ErrInvalidRequest)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model:       c.model,
		Temperature: defaultTemperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &domain.TransportError{Op: opChat, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.TransportError{Op: opChat, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", &domain.RemoteRejected{Op: opChat, StatusCode: resp.StatusCode, Body: apiErr.Error.Message}
		}
		return "", &domain.RemoteRejected{Op: opChat, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &domain.MalformedResponse{Op: opChat, Reason: "decode body", Body: string(raw), Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &domain.MalformedResponse{Op: opChat, Reason: "no choices", Body: string(raw)}
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", &domain.MalformedResponse{Op: opChat, Reason: "empty response", Body: string(raw)}
	}
	return text, nil
}

func normalizeModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := modelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := modelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultModel, "defaulted"
}
