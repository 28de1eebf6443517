// Package httpapi serves runs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/input"
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/userinteraction"
)

const maxQueryBytes = 8 << 10

// RunnerFactory returns a runner reporting to renderer. It is called once
// per request.
type RunnerFactory func(renderer output.RendererPort) input.QueryRunner

type Options struct {
	RequestTimeout    time.Duration
	MaxConcurrentRuns int
	AccessLog         bool
}

type Server struct {
	runners   RunnerFactory
	tools     []entity.ToolSpec
	artifacts map[entity.ToolName]bool
	logger    output.LoggerPort
	opts      Options
}

func NewServer(runners RunnerFactory, tools []entity.ToolSpec, logger output.LoggerPort, opts Options) *Server {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 4
	}
	artifacts := make(map[entity.ToolName]bool)
	for _, spec := range tools {
		if spec.Artifact {
			artifacts[spec.Name] = true
		}
	}
	return &Server{runners: runners, tools: tools, artifacts: artifacts, logger: logger, opts: opts}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.opts.AccessLog {
		r.Use(httplog.RequestLogger(httplog.NewLogger("sql-analyst", httplog.Options{JSON: true, Concise: true})))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", s.listTools)
		r.With(middleware.Throttle(s.opts.MaxConcurrentRuns)).Post("/query", s.query)
	})
	return r
}

type toolView struct {
	Name        entity.ToolName `json:"name"`
	Description string          `json:"description"`
	Input       string          `json:"input"`
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	views := make([]toolView, 0, len(s.tools))
	for _, spec := range s.tools {
		views = append(views, toolView{Name: spec.Name, Description: spec.Description, Input: spec.InputContract})
	}
	JSON(w, http.StatusOK, views)
}

type queryRequest struct {
	Query string `json:"query"`
}

type stepView struct {
	Index       int               `json:"index"`
	Kind        entity.ActionKind `json:"kind"`
	Thought     string            `json:"thought,omitempty"`
	Tool        entity.ToolName   `json:"tool,omitempty"`
	Input       string            `json:"input,omitempty"`
	Observation string            `json:"observation,omitempty"`
}

type queryResponse struct {
	RunID            string                   `json:"run_id"`
	Answer           *string                  `json:"answer,omitempty"`
	TerminatedReason entity.TerminationReason `json:"terminated_reason"`
	Error            string                   `json:"error,omitempty"`
	Steps            []stepView               `json:"steps"`
	Charts           []string                 `json:"charts,omitempty"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		Error(w, http.StatusBadRequest, "query cannot be empty")
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	recorder := userinteraction.NewRecorder()
	result, err := s.runners(recorder).Run(ctx, req.Query)
	if result == nil {
		s.logger.Error("run returned no result", "error", err)
		Error(w, http.StatusInternalServerError, "run failed")
		return
	}

	if err != nil {
		s.logger.Warn("run failed", "run_id", result.RunID, "reason", result.TerminatedReason, "error", err)
	}
	resp := s.view(result, recorder)
	JSON(w, statusFor(result, err), resp)
}

func (s *Server) view(result *entity.RunResult, recorder *userinteraction.Recorder) queryResponse {
	resp := queryResponse{
		RunID:            result.RunID,
		Answer:           result.FinalAnswer,
		TerminatedReason: result.TerminatedReason,
		Error:            result.FailureMessage(),
		Steps:            make([]stepView, 0, len(result.Steps)),
	}
	for _, step := range result.Steps {
		v := stepView{Index: step.Index, Kind: step.Action.Kind(), Observation: step.Observation}
		switch a := step.Action.(type) {
		case entity.ToolCall:
			v.Thought, v.Tool, v.Input = a.Thought, a.Name, a.RawInput
			if s.artifacts[a.Name] && !strings.HasPrefix(step.Observation, "Error:") {
				v.Observation = "(chart)"
			}
		case entity.FinalAnswer:
			v.Thought = a.Thought
		case entity.Malformed:
			v.Input = a.RawText
		}
		resp.Steps = append(resp.Steps, v)
	}

	for name := range s.artifacts {
		for _, markup := range recorder.Artifacts(name) {
			clean, err := SanitizeChart(markup)
			if err != nil {
				s.logger.Warn("chart dropped", "error", err)
				continue
			}
			resp.Charts = append(resp.Charts, clean)
		}
	}
	return resp
}

func statusFor(result *entity.RunResult, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case result.TerminatedReason == entity.TerminatedStepBudgetExhausted:
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// JSON writes v as a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
