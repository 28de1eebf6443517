package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

const (
	DefaultMaxObservationBytes = 20000
	truncatedMarker            = "\n... (truncated)"
)

var _ output.ToolRegistry = (*ToolRegistryImpl)(nil)

// ToolRegistryImpl keeps tools in registration order and turns every tool
// failure into an observation the planner can read.
type ToolRegistryImpl struct {
	tools    map[entity.ToolName]output.ToolPort
	order    []entity.ToolName
	maxBytes int
	logger   output.LoggerPort
}

func NewToolRegistry(logger output.LoggerPort) *ToolRegistryImpl {
	return &ToolRegistryImpl{
		tools:    make(map[entity.ToolName]output.ToolPort),
		maxBytes: DefaultMaxObservationBytes,
		logger:   logger,
	}
}

// WithMaxObservationBytes caps observation length; 0 disables the cap.
// Artifact observations are never cut.
func (r *ToolRegistryImpl) WithMaxObservationBytes(n int) *ToolRegistryImpl {
	r.maxBytes = n
	return r
}

// Register adds tool, replacing any tool with the same name in place.
func (r *ToolRegistryImpl) Register(tool output.ToolPort) {
	name := tool.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

func (r *ToolRegistryImpl) Get(name entity.ToolName) (output.ToolPort, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *ToolRegistryImpl) ListTools() []entity.ToolSpec {
	result := make([]entity.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name].Spec())
	}
	return result
}

func (r *ToolRegistryImpl) Invoke(ctx context.Context, name entity.ToolName, input string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool '%s'", name), nil
	}

	log := r.logger.WithField("tool", name.String())
	start := time.Now()
	log.Debug("tool invoked", "input", input)

	result, err := tool.Execute(ctx, input)
	if err != nil {
		if isContextError(ctx, err) {
			log.Error("tool interrupted", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return "", fmt.Errorf("%s: %w", name, err)
		}
		log.Warn("tool failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return r.truncate("Error: " + err.Error()), nil
	}

	log.Debug("tool completed", "bytes", len(result), "duration_ms", time.Since(start).Milliseconds())
	if tool.Spec().Artifact {
		return result, nil
	}
	return r.truncate(result), nil
}

func (r *ToolRegistryImpl) truncate(observation string) string {
	if r.maxBytes <= 0 || len(observation) <= r.maxBytes {
		return observation
	}
	cut := r.maxBytes
	for cut > 0 && !utf8.RuneStart(observation[cut]) {
		cut--
	}
	return observation[:cut] + truncatedMarker
}

func isContextError(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx.Err() != nil
}
