package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/input"
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"
	"github.com/Neural-Bridge/sql-analyst/internal/usecase/executor"
)

type fakeRunner struct {
	renderer output.RendererPort
	run      func(renderer output.RendererPort, query string) (*entity.RunResult, error)
}

func (f *fakeRunner) Run(_ context.Context, query string) (*entity.RunResult, error) {
	return f.run(f.renderer, query)
}

var testTools = []entity.ToolSpec{
	{Name: entity.ToolQueryDatabase, Description: "runs SQL", InputContract: "one SELECT"},
	{Name: entity.ToolVisualizeData, Description: "charts", InputContract: "payload", Artifact: true},
}

func newTestServer(run func(output.RendererPort, string) (*entity.RunResult, error)) http.Handler {
	factory := func(renderer output.RendererPort) input.QueryRunner {
		return &fakeRunner{renderer: renderer, run: run}
	}
	return NewServer(factory, testTools, logger.NewNop(), Options{}).Handler()
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	return rec, got
}

func TestQuery_FinalAnswerWithChart(t *testing.T) {
	h := newTestServer(func(r output.RendererPort, query string) (*entity.RunResult, error) {
		chart := `<img src="data:image/svg+xml;base64,AAAA" onload="alert(1)"/><script>alert(2)</script>`
		call := entity.ToolCall{Thought: "draw it", Name: entity.ToolVisualizeData, RawInput: "payload"}
		r.OnToolStart(call.Name, call.RawInput)
		r.OnToolEnd(call.Name, chart)
		answer := "Queen has 3 albums"
		r.OnFinish(answer)
		return &entity.RunResult{
			RunID:            "run-1",
			Query:            query,
			FinalAnswer:      &answer,
			TerminatedReason: entity.TerminatedFinalAnswer,
			Steps: []entity.Step{
				{Index: 1, Action: call, Observation: chart},
				{Index: 2, Action: entity.FinalAnswer{Thought: "done", Text: answer}},
			},
		}, nil
	})

	rec, got := post(t, h, `{"query": "How many albums does Queen have?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "Queen has 3 albums", got["answer"])
	assert.Equal(t, "final_answer", got["terminated_reason"])

	steps := got["steps"].([]any)
	require.Len(t, steps, 2)
	first := steps[0].(map[string]any)
	assert.Equal(t, "visualize_data", first["tool"])
	assert.Equal(t, "(chart)", first["observation"])

	charts := got["charts"].([]any)
	require.Len(t, charts, 1)
	assert.Equal(t, `<img src="data:image/svg+xml;base64,AAAA"/>`, charts[0])
}

func TestQuery_StepBudgetExhausted(t *testing.T) {
	h := newTestServer(func(_ output.RendererPort, query string) (*entity.RunResult, error) {
		return &entity.RunResult{RunID: "run-2", Query: query, TerminatedReason: entity.TerminatedStepBudgetExhausted},
			context.Canceled
	})

	rec, got := post(t, h, `{"query": "loop"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Nil(t, got["answer"])
	assert.Contains(t, got["error"], "without reaching an answer")
}

func TestQuery_FatalTimeout(t *testing.T) {
	h := newTestServer(func(_ output.RendererPort, query string) (*entity.RunResult, error) {
		return &entity.RunResult{RunID: "run-3", TerminatedReason: entity.TerminatedFatalError, Err: context.DeadlineExceeded},
			context.DeadlineExceeded
	})

	rec, got := post(t, h, `{"query": "slow"}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "the agent failed: timed out", got["error"])
}

func TestQuery_ProviderErrorTextIsNotReturned(t *testing.T) {
	apiErr := &openai.APIError{
		HTTPStatusCode: http.StatusUnauthorized,
		Message:        "Incorrect API key provided: sk-secret-1234",
	}
	h := newTestServer(func(_ output.RendererPort, query string) (*entity.RunResult, error) {
		err := &executor.FatalError{
			Stage: executor.StagePlanner,
			Err:   fmt.Errorf("chat completion failed: %w: %w", output.ErrPlannerAuth, apiErr),
		}
		return &entity.RunResult{RunID: "run-4", TerminatedReason: entity.TerminatedFatalError, Err: err}, err
	})

	rec, got := post(t, h, `{"query": "anything"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "the agent failed: planner: authentication failed", got["error"])
	assert.NotContains(t, rec.Body.String(), "sk-secret")
}

func TestQuery_BadRequests(t *testing.T) {
	h := newTestServer(func(output.RendererPort, string) (*entity.RunResult, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	})

	for _, body := range []string{`not json`, `{"query": "   "}`, `{}`} {
		rec, got := post(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, got["error"])
	}
}

func TestListTools(t *testing.T) {
	h := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []toolView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, entity.ToolQueryDatabase, got[0].Name)
	assert.Equal(t, "one SELECT", got[0].Input)
}

func TestHealth(t *testing.T) {
	h := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSanitizeChart(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"inline image kept", `<img src="data:image/png;base64,AAAA"/>`, `<img src="data:image/png;base64,AAAA"/>`},
		{"remote image dropped", `<img src="https://evil.example/x.png"/>`, `<img/>`},
		{"script removed", `<div><b>ok</b><script>x()</script></div>`, `<div><b>ok</b></div>`},
		{"handlers removed", `<p onclick="x()" class="c">hi</p>`, `<p class="c">hi</p>`},
		{"javascript link", `<a href="javascript:x()">x</a>`, `<a>x</a>`},
		{"comment removed", `<span>a<!-- c --></span>`, `<span>a</span>`},
		{"iframe removed", `<iframe src="data:image/png;base64,AA"></iframe>text`, `text`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeChart(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
