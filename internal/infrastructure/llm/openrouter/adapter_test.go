package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(req)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_SendsSingleUserMessage(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := newServer(t, func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		got = req
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "Thought: look at the tables\nAction: list_tables\nAction Input: ",
				},
			}},
		}
	})

	adapter := NewOpenRouterAdapter(Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: srv.URL,
		Logger:  logger.NewNop(),
	})

	out, err := adapter.Complete(context.Background(), "the prompt")

	require.NoError(t, err)
	assert.Equal(t, "Thought: look at the tables\nAction: list_tables\nAction Input: ", out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[0].Role)
	assert.Equal(t, "the prompt", got.Messages[0].Content)
	assert.Equal(t, []string{StopSequence}, got.Stop)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newServer(t, func(openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return openai.ChatCompletionResponse{}
	})
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	_, err := adapter.Complete(context.Background(), "p")

	assert.ErrorContains(t, err, "no choices")
}

func TestComplete_EmptyContent(t *testing.T) {
	srv := newServer(t, func(openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: " \n"},
				FinishReason: openai.FinishReasonLength,
			}},
		}
	})
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	_, err := adapter.Complete(context.Background(), "p")

	assert.ErrorContains(t, err, "empty completion")
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	_, err := adapter.Complete(context.Background(), "p")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
	assert.ErrorIs(t, err, output.ErrPlannerAuth)
}

func TestComplete_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	_, err := adapter.Complete(context.Background(), "p")

	assert.ErrorIs(t, err, output.ErrPlannerRateLimited)
}

func TestComplete_CancelledContext(t *testing.T) {
	srv := newServer(t, func(openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		return openai.ChatCompletionResponse{}
	})
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := adapter.Complete(ctx, "p")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestComplete_SendsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Final Answer: 1"},
			}},
		})
	}))
	defer srv.Close()
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})

	_, err := adapter.Complete(context.Background(), "p")
	require.NoError(t, err)

	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestComplete_SendsConfiguredTemperature(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := newServer(t, func(req openai.ChatCompletionRequest) openai.ChatCompletionResponse {
		got = req
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Final Answer: 1"},
			}},
		}
	})
	adapter := NewOpenRouterAdapter(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL, Temperature: 0.7})

	_, err := adapter.Complete(context.Background(), "p")
	require.NoError(t, err)

	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
}
