package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neural-Bridge/sql-analyst/internal/adapter/tool"
	"github.com/Neural-Bridge/sql-analyst/internal/application/service"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/chart"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/database/databasetest"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/prompts"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/userinteraction"
)

// scriptedPlanner answers each call with the next step of its script.
type scriptedPlanner struct {
	steps   []func(prompt string) (string, error)
	prompts []string
}

func (p *scriptedPlanner) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.prompts = append(p.prompts, prompt)
	i := len(p.prompts) - 1
	if i >= len(p.steps) {
		return "", fmt.Errorf("script exhausted after %d calls", len(p.steps))
	}
	return p.steps[i](prompt)
}

func reply(text string) func(string) (string, error) {
	return func(string) (string, error) { return text, nil }
}

type countingTool struct {
	name  entity.ToolName
	calls int
}

func (c *countingTool) Spec() entity.ToolSpec {
	return entity.ToolSpec{Name: c.name, Description: "counts calls", InputContract: "anything"}
}

func (c *countingTool) Execute(context.Context, string) (string, error) {
	c.calls++
	return "ok", nil
}

func newUseCase(t *testing.T, planner *scriptedPlanner, registry *service.ToolRegistryImpl, cfg Config) (*UseCase, *userinteraction.Recorder) {
	t.Helper()
	gen, err := prompts.NewGenerator(prompts.PlannerPrompt, nil)
	require.NoError(t, err)
	recorder := userinteraction.NewRecorder()
	uc := New(planner, registry, prompts.NewBuilder(gen, "sqlite"), recorder, logger.NewNop(), cfg)
	return uc, recorder
}

func TestRun_MalformedConsumesOneStepWithoutToolCall(t *testing.T) {
	counter := &countingTool{name: entity.ToolListTables}
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(counter)

	planner := &scriptedPlanner{steps: []func(string) (string, error){
		reply("Thought: I am not sure what to do"),
		reply("Thought: done\nFinal Answer: nothing to report"),
	}}
	uc, _ := newUseCase(t, planner, registry, Config{MaxSteps: 5})

	result, err := uc.Run(context.Background(), "anything")

	require.NoError(t, err)
	assert.Equal(t, 0, counter.calls)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, entity.ActionMalformed, result.Steps[0].Action.Kind())
	assert.Contains(t, result.Steps[0].Observation, "Invalid format")
	assert.Equal(t, entity.TerminatedFinalAnswer, result.TerminatedReason)
	require.NotNil(t, result.FinalAnswer)
	assert.Equal(t, "nothing to report", *result.FinalAnswer)

	// The corrective observation reaches the next prompt.
	require.Len(t, planner.prompts, 2)
	assert.Contains(t, planner.prompts[1], "Invalid output:\nThought: I am not sure what to do")
	assert.Contains(t, planner.prompts[1], "missing 'Action:' or 'Final Answer:' line")
}

func TestRun_StepBudgetExhausted(t *testing.T) {
	counter := &countingTool{name: entity.ToolListTables}
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(counter)

	loop := reply("Thought: again\nAction: list_tables\nAction Input: ")
	planner := &scriptedPlanner{steps: []func(string) (string, error){loop, loop, loop, loop}}
	uc, recorder := newUseCase(t, planner, registry, Config{MaxSteps: 3})

	result, err := uc.Run(context.Background(), "loop forever")

	assert.ErrorIs(t, err, ErrStepBudgetExhausted)
	assert.Equal(t, entity.TerminatedStepBudgetExhausted, result.TerminatedReason)
	assert.Nil(t, result.FinalAnswer)
	assert.Len(t, result.Steps, 3)
	assert.Len(t, planner.prompts, 3)
	assert.Equal(t, 3, counter.calls)

	events := recorder.Events()
	last := events[len(events)-1]
	assert.Equal(t, userinteraction.EventFailure, last.Kind)
	assert.Equal(t, entity.TerminatedStepBudgetExhausted, last.Reason)
	assert.Contains(t, last.Text, "stopped after 3 steps")
}

func TestRun_MalformedCountsAgainstBudget(t *testing.T) {
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(&countingTool{name: entity.ToolListTables})

	bad := reply("Final Answer: no thought line")
	planner := &scriptedPlanner{steps: []func(string) (string, error){bad, bad, bad}}
	uc, _ := newUseCase(t, planner, registry, Config{MaxSteps: 2})

	result, err := uc.Run(context.Background(), "q")

	assert.ErrorIs(t, err, ErrStepBudgetExhausted)
	assert.Len(t, result.Steps, 2)
}

func TestRun_FinalAnswerOnLastStepSucceeds(t *testing.T) {
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(&countingTool{name: entity.ToolListTables})

	planner := &scriptedPlanner{steps: []func(string) (string, error){
		reply("Thought: look\nAction: list_tables\nAction Input: "),
		reply("Thought: done\nFinal Answer: ok"),
	}}
	uc, _ := newUseCase(t, planner, registry, Config{MaxSteps: 2})

	result, err := uc.Run(context.Background(), "q")

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestRun_PlannerErrorIsFatal(t *testing.T) {
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(&countingTool{name: entity.ToolListTables})

	boom := errors.New("provider unavailable")
	planner := &scriptedPlanner{steps: []func(string) (string, error){
		reply("Thought: look\nAction: list_tables\nAction Input: "),
		func(string) (string, error) { return "", boom },
	}}
	uc, _ := newUseCase(t, planner, registry, Config{MaxSteps: 10})

	result, err := uc.Run(context.Background(), "q")

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StagePlanner, fatal.Stage)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, entity.TerminatedFatalError, result.TerminatedReason)
	assert.Len(t, result.Steps, 1)
	assert.Len(t, planner.prompts, 2)
	assert.Equal(t, "the agent failed: planner: upstream error", result.FailureMessage())
}

func TestRun_PlannerTimeoutIsFatal(t *testing.T) {
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(&countingTool{name: entity.ToolListTables})

	planner := &blockingPlanner{}
	gen, err := prompts.NewGenerator(prompts.PlannerPrompt, nil)
	require.NoError(t, err)
	uc := New(planner, registry, prompts.NewBuilder(gen, "sqlite"), userinteraction.NewRecorder(), logger.NewNop(),
		Config{PlannerTimeout: 20 * time.Millisecond})

	result, err := uc.Run(context.Background(), "q")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, entity.TerminatedFatalError, result.TerminatedReason)
}

type blockingPlanner struct{}

func (blockingPlanner) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_CancelledContext(t *testing.T) {
	registry := service.NewToolRegistry(logger.NewNop())
	planner := &scriptedPlanner{}
	uc, _ := newUseCase(t, planner, registry, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := uc.Run(ctx, "q")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, entity.TerminatedFatalError, result.TerminatedReason)
	assert.Empty(t, planner.prompts)
}

func TestRun_ToolErrorsAreObservations(t *testing.T) {
	db := databasetest.NewChinook(t)
	registry := service.NewToolRegistry(logger.NewNop())
	registry.Register(tool.NewQueryDatabaseTool(db, logger.NewNop(), time.Second, 0))

	planner := &scriptedPlanner{steps: []func(string) (string, error){
		reply("Thought: clean up\nAction: query_database\nAction Input: DROP TABLE Track"),
		reply("Thought: I cannot do that\nFinal Answer: I'm not able to help with that"),
	}}
	uc, _ := newUseCase(t, planner, registry, Config{})

	result, err := uc.Run(context.Background(), "drop the track table")

	require.NoError(t, err)
	assert.Equal(t, "Error: only SELECT statements are allowed, got: DROP", result.Steps[0].Observation)
	assert.Contains(t, planner.prompts[1], "Observation: Error: only SELECT statements are allowed, got: DROP")
}

const queenSQL = `SELECT Album.Title, COUNT(Track.TrackId) AS Tracks
FROM Album
JOIN Artist ON Artist.ArtistId = Album.ArtistId
JOIN Track ON Track.AlbumId = Album.AlbumId
WHERE Artist.Name = 'Queen'
GROUP BY Album.AlbumId, Album.Title
ORDER BY Album.AlbumId`

// answerFromLastObservation writes the final answer from the dump the
// previous query step returned, as a planner would.
func answerFromLastObservation(prompt string) (string, error) {
	i := strings.LastIndex(prompt, "Observation: ")
	if i < 0 {
		return "", errors.New("no observation in prompt")
	}
	dump, _, _ := strings.Cut(prompt[i+len("Observation: "):], "\n")
	table, err := chart.ParseTable(dump)
	if err != nil {
		return "", err
	}
	titles, _ := table.Column("Title")
	tracks, _ := table.Column("Tracks")

	var b strings.Builder
	b.WriteString("Thought: I now know the final answer\nFinal Answer: Tracks per Queen album:\n")
	for i := range titles {
		fmt.Fprintf(&b, "- %v: %v\n", titles[i], tracks[i])
	}
	return b.String(), nil
}

func TestRun_QueenTracksEndToEnd(t *testing.T) {
	db := databasetest.NewChinook(t)
	registry := service.NewToolRegistry(logger.NewNop())
	query := tool.NewQueryDatabaseTool(db, logger.NewNop(), time.Second, 0)
	registry.Register(tool.NewListTablesTool(db, logger.NewNop()))
	registry.Register(tool.NewDescribeTablesTool(query, logger.NewNop()))
	registry.Register(query)
	registry.Register(tool.NewVisualizeDataTool(chart.NewSandbox(), logger.NewNop()))

	planner := &scriptedPlanner{steps: []func(string) (string, error){
		reply("Question: " + ExampleQuery + "\nThought: I should look at the tables in the database.\nAction: list_tables\nAction Input: "),
		reply("Thought: Album, Artist and Track look relevant.\nAction: describe_tables\nAction Input: Album, Artist, Track"),
		reply("Thought: I can join the three tables.\nAction: query_database\nAction Input: ```sql\n" + queenSQL + "\n```"),
		answerFromLastObservation,
	}}
	uc, recorder := newUseCase(t, planner, registry, Config{MaxSteps: DefaultMaxSteps})

	result, err := uc.Run(context.Background(), ExampleQuery)

	require.NoError(t, err)
	assert.Equal(t, entity.TerminatedFinalAnswer, result.TerminatedReason)
	assert.NotEmpty(t, result.RunID)
	require.NotNil(t, result.FinalAnswer)
	for _, album := range databasetest.Albums {
		if album.Artist != "Queen" {
			assert.NotContains(t, *result.FinalAnswer, album.Title)
			continue
		}
		assert.Contains(t, *result.FinalAnswer, fmt.Sprintf("- %s: %d", album.Title, album.Tracks))
	}

	registered := map[entity.ToolName]bool{}
	for _, spec := range registry.ListTools() {
		registered[spec.Name] = true
	}
	for _, step := range result.Steps {
		if call, ok := step.Action.(entity.ToolCall); ok {
			assert.True(t, registered[call.Name], "unregistered tool %s", call.Name)
		}
	}
	assert.Equal(t, []entity.ToolName{entity.ToolListTables, entity.ToolDescribeTables, entity.ToolQueryDatabase}, recorder.Tools())
	assert.Len(t, result.Steps, 4)
	assert.Equal(t, "Album,Artist,Track", result.Steps[0].Observation)

	// Every prompt lists the tools and carries the question.
	for _, p := range planner.prompts {
		assert.Contains(t, p, "visualize_data")
		assert.Contains(t, p, ExampleQuery)
	}
}
