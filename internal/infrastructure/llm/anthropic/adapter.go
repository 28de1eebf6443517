// Package anthropic completes planner prompts with the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultMaxTokens = 2048
	stopSequence     = "\nObservation:"
)

var _ output.PlannerPort = (*Adapter)(nil)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
	Logger      output.LoggerPort
}

type Adapter struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	logger      output.LoggerPort
}

func New(cfg Config) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Adapter{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

func (a *Adapter) Model() string {
	return a.model
}

// Complete performs a single-turn completion and returns the concatenated
// text blocks.
func (a *Adapter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:         anthropic.Model(a.model),
		MaxTokens:     int64(a.maxTokens),
		Temperature:   anthropic.Float(a.temperature),
		StopSequences: []string{stopSequence},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("%w: %w", output.PlannerStatusError(apiErr.StatusCode), err)
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("empty completion (stop reason %q)", msg.StopReason)
	}
	if a.logger != nil {
		a.logger.Debug("completion received",
			"model", a.model,
			"input_tokens", msg.Usage.InputTokens,
			"output_tokens", msg.Usage.OutputTokens,
		)
	}
	return b.String(), nil
}
