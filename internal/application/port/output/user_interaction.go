package output

import "github.com/Neural-Bridge/sql-analyst/internal/domain/entity"

// RendererPort receives the progress of a run, one call per event.
type RendererPort interface {
	OnThought(thought string)
	OnToolStart(name entity.ToolName, formattedInput string)
	OnToolEnd(name entity.ToolName, observation string)
	OnFinish(answer string)
	OnFailure(reason entity.TerminationReason, message string)
}
