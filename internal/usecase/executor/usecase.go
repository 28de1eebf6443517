package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/input"
	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/action"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

var _ input.QueryRunner = (*UseCase)(nil)

const DefaultMaxSteps = 10

// ExampleQuery is the question the fixtures and the CLI help are built around.
const ExampleQuery = `Count the number of tracks in each album by "Queen"`

type Config struct {
	// MaxSteps counts planner calls, whatever they yield.
	MaxSteps       int
	PlannerTimeout time.Duration
}

type UseCase struct {
	planner  output.PlannerPort
	tools    output.ToolRegistry
	prompts  output.PromptBuilder
	parser   *action.Parser
	renderer output.RendererPort
	logger   output.LoggerPort
	cfg      Config
}

func New(
	planner output.PlannerPort,
	tools output.ToolRegistry,
	prompts output.PromptBuilder,
	renderer output.RendererPort,
	logger output.LoggerPort,
	cfg Config,
) *UseCase {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &UseCase{
		planner:  planner,
		tools:    tools,
		prompts:  prompts,
		parser:   action.NewParser(tools.ListTools()),
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
	}
}

// WithRenderer returns a copy of uc reporting to renderer, for callers that
// render each run separately.
func (uc *UseCase) WithRenderer(renderer output.RendererPort) *UseCase {
	clone := *uc
	clone.renderer = renderer
	return &clone
}

// run holds the state of one Run call.
type run struct {
	result     *entity.RunResult
	transcript *entity.Transcript
	state      entity.LoopState
	log        output.LoggerPort
}

func (r *run) transition(to entity.LoopState) {
	r.log.Debug("state transition", "from", r.state.String(), "to", to.String(), "step", len(r.transcript.Steps))
	r.state = to
}

func (uc *UseCase) Run(ctx context.Context, query string) (*entity.RunResult, error) {
	runID := uuid.NewString()
	r := &run{
		result:     &entity.RunResult{RunID: runID, Query: query},
		transcript: &entity.Transcript{Query: query},
		state:      entity.StatePlanning,
		log:        uc.logger.WithField("run_id", runID),
	}
	tools := uc.tools.ListTools()
	r.log.Info("run started", "query", query, "max_steps", uc.cfg.MaxSteps, "tools", len(tools))

	for step := 1; step <= uc.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return uc.fail(r, &FatalError{Stage: StagePlanner, Err: err})
		}

		prompt, err := uc.prompts.Build(query, tools, r.transcript)
		if err != nil {
			return uc.fail(r, &FatalError{Stage: StagePrompt, Err: err})
		}
		completion, err := uc.complete(ctx, prompt)
		if err != nil {
			return uc.fail(r, &FatalError{Stage: StagePlanner, Err: err})
		}
		r.transition(entity.StateActing)

		switch a := uc.parser.Parse(completion).(type) {
		case entity.FinalAnswer:
			uc.renderer.OnThought(a.Thought)
			r.transcript.Append(a, "")
			return uc.finish(r, a.Text)

		case entity.Malformed:
			r.log.Warn("malformed completion", "step", step, "reason", a.Reason)
			r.transcript.Append(a, correction(a))
			r.transition(entity.StatePlanning)

		case entity.ToolCall:
			uc.renderer.OnThought(a.Thought)
			uc.renderer.OnToolStart(a.Name, action.FormatInput(a.Name, a.RawInput))
			r.transition(entity.StateObserving)

			observation, err := uc.tools.Invoke(ctx, a.Name, a.RawInput)
			if err != nil {
				return uc.fail(r, &FatalError{Stage: StageTool, Err: err})
			}
			uc.renderer.OnToolEnd(a.Name, observation)
			r.transcript.Append(a, observation)
			r.log.Info("tool step", "step", step, "tool", a.Name.String(), "observation_bytes", len(observation))
			r.transition(entity.StatePlanning)
		}
	}

	r.log.Warn("step budget exhausted", "max_steps", uc.cfg.MaxSteps)
	r.result.TerminatedReason = entity.TerminatedStepBudgetExhausted
	r.result.Err = ErrStepBudgetExhausted
	return uc.close(r, ErrStepBudgetExhausted)
}

func (uc *UseCase) complete(ctx context.Context, prompt string) (string, error) {
	if uc.cfg.PlannerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.PlannerTimeout)
		defer cancel()
	}
	start := time.Now()
	completion, err := uc.planner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	uc.logger.Debug("planner completed", "duration_ms", time.Since(start).Milliseconds(), "bytes", len(completion))
	return completion, nil
}

func (uc *UseCase) finish(r *run, answer string) (*entity.RunResult, error) {
	r.result.FinalAnswer = &answer
	r.result.TerminatedReason = entity.TerminatedFinalAnswer
	r.transition(entity.StateDone)
	r.result.Steps = r.transcript.Steps
	uc.renderer.OnFinish(answer)
	r.log.Info("run finished", "steps", len(r.result.Steps))
	return r.result, nil
}

func (uc *UseCase) fail(r *run, err *FatalError) (*entity.RunResult, error) {
	r.log.Error("run failed", "stage", string(err.Stage), "error", err.Err)
	r.result.TerminatedReason = entity.TerminatedFatalError
	r.result.Err = err
	return uc.close(r, err)
}

func (uc *UseCase) close(r *run, err error) (*entity.RunResult, error) {
	r.transition(entity.StateFailed)
	r.result.Steps = r.transcript.Steps
	uc.renderer.OnFailure(r.result.TerminatedReason, r.result.FailureMessage())
	return r.result, err
}

func correction(m entity.Malformed) string {
	return fmt.Sprintf("Invalid format: %s. Reply with a 'Thought:' line followed by either an 'Action:' "+
		"and an 'Action Input:' line, or a 'Final Answer:' line.", m.Reason)
}
