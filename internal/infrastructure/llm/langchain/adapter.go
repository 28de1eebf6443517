// Package langchain completes planner prompts with any langchaingo model,
// a local Ollama server by default.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const stopWord = "\nObservation:"

var _ output.PlannerPort = (*Adapter)(nil)

type Adapter struct {
	llm         llms.Model
	model       string
	temperature float64
	logger      output.LoggerPort
}

// NewOllama connects to the Ollama server at serverURL; an empty URL uses
// the client's default.
func NewOllama(serverURL, model string, temperature float64, logger output.LoggerPort) (*Adapter, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return New(llm, model, temperature, logger), nil
}

func New(llm llms.Model, model string, temperature float64, logger output.LoggerPort) *Adapter {
	return &Adapter{llm: llm, model: model, temperature: temperature, logger: logger}
}

func (a *Adapter) Model() string {
	return a.model
}

func (a *Adapter) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt,
		llms.WithTemperature(a.temperature),
		llms.WithStopWords([]string{stopWord}),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	// Not every backend honours stop words.
	if i := strings.Index(completion, stopWord); i >= 0 {
		completion = completion[:i]
	}
	if strings.TrimSpace(completion) == "" {
		return "", fmt.Errorf("empty completion")
	}
	if a.logger != nil {
		a.logger.Debug("completion received", "model", a.model, "bytes", len(completion))
	}
	return completion, nil
}
