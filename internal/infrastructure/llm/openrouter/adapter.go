// Package openrouter completes planner prompts through any OpenAI-compatible
// chat completions endpoint (OpenAI itself or OpenRouter).
package openrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"

	"github.com/sashabaranov/go-openai"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OpenAIBaseURL     = "https://api.openai.com/v1"
)

// StopSequence keeps the model from writing the tool result itself.
const StopSequence = "\nObservation:"

var _ output.PlannerPort = (*OpenRouterAdapter)(nil)

type OpenRouterAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      output.LoggerPort
}

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	HTTPClient  *http.Client
	Logger      output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: OpenRouterBaseURL,
	}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var size int
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		size = len(body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	t.logger.Debug("HTTP request", "method", req.Method, "url", req.URL.String(), "body_bytes", size)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("HTTP request failed", "error", err)
		return nil, err
	}
	t.logger.Debug("HTTP response", "status", resp.StatusCode)
	return resp, nil
}

func NewOpenRouterAdapter(cfg Config) *OpenRouterAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Logger != nil {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &loggingTransport{base: base, logger: cfg.Logger}
		httpClient = &wrapped
	}
	config.HTTPClient = httpClient

	return &OpenRouterAdapter{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Model reports the configured model name.
func (a *OpenRouterAdapter) Model() string {
	return a.model
}

// Complete sends prompt as a single user message and returns the text of
// the first choice.
func (a *OpenRouterAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	// A zero temperature is dropped by omitempty and the provider default
	// applies; the smallest float32 is sent instead.
	temperature := a.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		Stop:        []string{StopSequence},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty completion (finish reason %q)", resp.Choices[0].FinishReason)
	}
	if a.logger != nil {
		a.logger.Debug("completion received",
			"model", a.model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
	}
	return content, nil
}

// classify tags err with the planner sentinel for its HTTP status.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", output.PlannerStatusError(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %w", output.PlannerStatusError(reqErr.HTTPStatusCode), err)
	}
	return err
}
